package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/merchantpos/paysync/internal/clientdata"
	"github.com/merchantpos/paysync/internal/config"
	"github.com/merchantpos/paysync/internal/database"
	"github.com/merchantpos/paysync/internal/modules/currency"
	"github.com/merchantpos/paysync/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers the maintenance jobs.
// The scheduler is not started here.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)

	if cfg.Jobs.CacheSweepSchedule != "" {
		if err := sched.AddJob(cfg.Jobs.CacheSweepSchedule, clientdata.NewCleanupJob(container.ClientData, log)); err != nil {
			return fmt.Errorf("failed to register cache cleanup job: %w", err)
		}
	}

	if cfg.Jobs.RatePrewarmSchedule != "" && len(cfg.Jobs.PrewarmCurrencies) > 0 {
		job := currency.NewPrewarmJob(container.Currency, cfg.Jobs.PrewarmCurrencies, log)
		if err := sched.AddJob(cfg.Jobs.RatePrewarmSchedule, job); err != nil {
			return fmt.Errorf("failed to register rate prewarm job: %w", err)
		}
	}

	if container.DB != nil {
		if err := sched.AddJob("0 30 * * * *", database.NewCheckpointJob(container.DB, log)); err != nil {
			return fmt.Errorf("failed to register WAL checkpoint job: %w", err)
		}
	}

	container.Scheduler = sched
	log.Info().Int("jobs", len(sched.Jobs())).Msg("Jobs registered")
	return nil
}
