package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultRunTimeout = 2 * time.Minute

// Trigger runs a Job once a day at a fixed local hour.
type Trigger struct {
	cron    *cron.Cron
	entry   cron.EntryID
	job     *Job
	timeout time.Duration
	logger  *slog.Logger
}

// NewTrigger schedules job daily at hour:00 in loc.
func NewTrigger(job *Job, hour int, loc *time.Location, logger *slog.Logger) (*Trigger, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("digest hour %d out of range 0-23", hour)
	}
	if loc == nil {
		loc = time.Local
	}
	t := &Trigger{
		cron:    cron.New(cron.WithLocation(loc)),
		job:     job,
		timeout: defaultRunTimeout,
		logger:  logger.With("component", "digest_trigger"),
	}
	id, err := t.cron.AddFunc(fmt.Sprintf("0 %d * * *", hour), t.run)
	if err != nil {
		return nil, fmt.Errorf("schedule digest: %w", err)
	}
	t.entry = id
	return t, nil
}

// Start begins the cron loop in its own goroutine.
func (t *Trigger) Start() {
	t.cron.Start()
	t.logger.Info("Digest trigger started", "next_run", t.Next())
}

// Stop halts the cron loop and waits for a running digest to finish or
// ctx to expire.
func (t *Trigger) Stop(ctx context.Context) {
	done := t.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		t.logger.Warn("Digest trigger stop timed out")
	}
}

// Next returns the next scheduled run, or the zero time before Start.
func (t *Trigger) Next() time.Time {
	return t.cron.Entry(t.entry).Next
}

func (t *Trigger) run() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	// Errors are logged by the job; cron has no retry policy.
	_, _ = t.job.Run(ctx)
}
