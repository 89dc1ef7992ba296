package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return j.name }

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{name: "bad"})
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestAddJob_DuplicateName(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 * * * *", &countingJob{name: "sweep"}))
	assert.Error(t, s.AddJob("0 0 * * * *", &countingJob{name: "sweep"}))
}

func TestRunNow_RecordsStatus(t *testing.T) {
	s := New(zerolog.Nop())
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.AddJob("0 0 * * * *", ok))
	require.NoError(t, s.AddJob("0 0 * * * *", failing))

	require.NoError(t, s.RunNow("ok"))
	assert.Error(t, s.RunNow("failing"))
	assert.Error(t, s.RunNow("missing"))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "failing", jobs[0].Name)
	assert.Equal(t, "boom", jobs[0].LastErr)
	assert.Equal(t, 1, jobs[0].Runs)
	assert.Equal(t, "ok", jobs[1].Name)
	assert.Empty(t, jobs[1].LastErr)
	assert.False(t, jobs[1].LastRun.IsZero())
}

func TestScheduledRun(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
