package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PrewarmJob fetches the day's rate tables ahead of the first conversion.
type PrewarmJob struct {
	service    *Service
	currencies []string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewPrewarmJob creates a job that refreshes the given currencies
func NewPrewarmJob(service *Service, currencies []string, log zerolog.Logger) *PrewarmJob {
	return &PrewarmJob{
		service:    service,
		currencies: currencies,
		timeout:    2 * time.Minute,
		log:        log.With().Str("job", "rate_prewarm").Logger(),
	}
}

// Run refreshes every configured currency. Failures are collected, not fatal.
func (j *PrewarmJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var errs []error
	for _, cur := range j.currencies {
		if err := j.service.Refresh(ctx, cur); err != nil {
			j.log.Warn().Err(err).Str("currency", cur).Msg("Failed to prewarm rates")
			errs = append(errs, fmt.Errorf("%s: %w", cur, err))
		}
	}

	j.log.Info().
		Int("currencies", len(j.currencies)).
		Int("failed", len(errs)).
		Msg("Rate prewarm completed")
	return errors.Join(errs...)
}

// Name returns the job name for scheduling and logging.
func (j *PrewarmJob) Name() string {
	return "rate_prewarm"
}
