package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CheckpointJob truncates the WAL so a busy cache file does not grow without bound.
type CheckpointJob struct {
	db  *DB
	log zerolog.Logger
}

// NewCheckpointJob creates a WAL checkpoint job for db
func NewCheckpointJob(db *DB, log zerolog.Logger) *CheckpointJob {
	return &CheckpointJob{
		db:  db,
		log: log.With().Str("job", "wal_checkpoint").Str("database", db.Name()).Logger(),
	}
}

// Run executes the checkpoint
func (j *CheckpointJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := j.db.Checkpoint(ctx); err != nil {
		j.log.Error().Err(err).Msg("WAL checkpoint failed")
		return err
	}
	j.log.Debug().Dur("duration", time.Since(start)).Msg("WAL checkpoint completed")
	return nil
}

// Name returns the job name
func (j *CheckpointJob) Name() string {
	return "wal_checkpoint"
}
