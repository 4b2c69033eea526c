package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/albapepper/expirywatch/internal/expiry"
)

// State is the scheduler lifecycle state.
type State int

const (
	Idle State = iota
	Armed
	Waiting
	Firing
	Stopped
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Waiting:
		return "waiting"
	case Firing:
		return "firing"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// TickOutcome describes what a wake-up did.
type TickOutcome string

const (
	TickInactive     TickOutcome = "inactive"      // scheduler not running
	TickOutsideHour  TickOutcome = "outside_hour"  // not the trigger minute
	TickAlreadyFired TickOutcome = "already_fired" // today already delivered
	TickEmpty        TickOutcome = "empty"         // nothing urgent
	TickFired        TickOutcome = "fired"
	TickFailed       TickOutcome = "failed" // state untouched; a Tick within the trigger minute can retry
)

// Sender delivers a composed message. *Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// DayStore persists the last fired day. *StateStore implements it.
type DayStore interface {
	LastFiredDay(ctx context.Context) (expiry.Day, bool, error)
	SetLastFiredDay(ctx context.Context, day expiry.Day) error
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// TriggerHour is the local hour (0-23) at which the daily notification fires.
	TriggerHour int
	// PollInterval is the wake-up period when AlignToHour is false.
	PollInterval time.Duration
	// AlignToHour schedules every wake-up at the next top of the hour so that
	// the minute == 0 check is reachable.
	AlignToHour bool
	Location    *time.Location
	// AppURL is attached to messages so activation can focus the host.
	AppURL string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultSchedulerOptions returns production defaults: 06:00 local, hourly.
func DefaultSchedulerOptions() SchedulerOptions {
	return SchedulerOptions{
		TriggerHour:  defaultTriggerHour,
		PollInterval: defaultPollInterval,
		AlignToHour:  true,
		Location:     time.Local,
	}
}

// Scheduler fires the daily expiry notification at most once per calendar
// day. It fires only when a wake-up lands on minute 0 of TriggerHour; with
// an hourly cadence there is exactly one such chance per day, so a missed
// minute (process asleep, clock jump) means no notification that day.
//
// One Scheduler per process. Start, Stop, UpdateProducts and Tick are safe
// to call concurrently and in any order.
type Scheduler struct {
	sender Sender
	store  DayStore
	opts   SchedulerOptions
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	products []expiry.Product
	cancel   context.CancelFunc
	done     chan struct{}

	// fireMu serializes wake-ups so two concurrent ticks cannot both pass
	// the last-fired check.
	fireMu sync.Mutex
}

// NewScheduler creates an idle scheduler.
func NewScheduler(sender Sender, store DayStore, opts SchedulerOptions, logger *slog.Logger) (*Scheduler, error) {
	if opts.TriggerHour < 0 || opts.TriggerHour > 23 {
		return nil, fmt.Errorf("trigger hour %d out of range 0-23", opts.TriggerHour)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		sender: sender,
		store:  store,
		opts:   opts,
		logger: logger.With("component", "scheduler"),
		state:  Idle,
	}, nil
}

// Start stores the snapshot and arms the wake-up loop. It never fires
// immediately. Calling Start on a running scheduler only replaces the
// snapshot; calling it after Stop re-arms.
func (s *Scheduler) Start(products []expiry.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = slices.Clone(products)
	if s.state != Idle && s.state != Stopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Armed
	go s.loop(ctx, s.done)

	s.logger.Info("Expiry scheduler started",
		"trigger_hour", s.opts.TriggerHour,
		"poll_interval", s.opts.PollInterval,
		"align_to_hour", s.opts.AlignToHour,
		"location", s.opts.Location.String(),
		"products", len(products))
}

// Stop cancels the wake-up loop and waits for any in-flight wake-up to
// finish. After Stop returns no wake-up fires. Idempotent. Must not be
// called from inside a Channel.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	wasIdle := s.state == Idle
	s.state = Stopped
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if wasIdle {
		return
	}

	cancel()
	<-done
	// Wait out a Tick invoked by another caller.
	s.fireMu.Lock()
	s.fireMu.Unlock() //nolint:staticcheck // barrier

	s.logger.Info("Expiry scheduler stopped")
}

// UpdateProducts replaces the snapshot used by the next wake-up.
func (s *Scheduler) UpdateProducts(products []expiry.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = slices.Clone(products)
}

// Products returns a copy of the current snapshot.
func (s *Scheduler) Products() []expiry.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.products)
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tick is the wake-up handler. The loop calls it on every wake-up; tests
// and operators may call it directly.
func (s *Scheduler) Tick(ctx context.Context) TickOutcome {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	s.mu.Lock()
	if s.state != Armed && s.state != Waiting {
		s.mu.Unlock()
		return TickInactive
	}
	s.state = Firing
	products := s.products
	s.mu.Unlock()

	outcome := s.fire(ctx, products)

	s.mu.Lock()
	if s.state == Firing {
		s.state = Waiting
	}
	s.mu.Unlock()

	tickTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (s *Scheduler) fire(ctx context.Context, products []expiry.Product) TickOutcome {
	now := s.opts.Now().In(s.opts.Location)
	if now.Hour() != s.opts.TriggerHour || now.Minute() != 0 {
		return TickOutsideHour
	}
	today := expiry.DayOf(now)

	last, ok, err := s.store.LastFiredDay(ctx)
	if err != nil {
		s.logger.Error("Failed to read notification state", "error", err)
		return TickFailed
	}
	if ok && last.Equal(today) {
		s.logger.Debug("Expiry notification already sent today", "day", today.String())
		return TickAlreadyFired
	}

	res := expiry.Classify(products, now, expiry.UrgentWindow)
	for _, inv := range res.Invalid {
		s.logger.Warn("Skipping product with invalid expiry",
			"product_id", inv.Product.ID, "name", inv.Product.Name, "error", inv.Error)
	}

	msg, ok := BuildMessage(res, s.opts.AppURL)
	if !ok {
		s.logger.Info("No urgent products today", "day", today.String(), "products", len(products))
		return TickEmpty
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Warn("Expiry notification not delivered",
			"day", today.String(), "error", err)
		return TickFailed
	}

	if err := s.store.SetLastFiredDay(ctx, today); err != nil {
		// Delivered but not recorded; the message tag collapses a repeat.
		s.logger.Error("Failed to record last fired day", "day", today.String(), "error", err)
	}
	s.logger.Info("Expiry notification sent",
		"day", today.String(), "items", res.Count(), "expired", len(res.Buckets[expiry.Expired]))
	return TickFired
}

// loop wakes up until ctx is cancelled.
func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Tick(ctx)
			timer.Reset(s.nextDelay())
		}
	}
}

// nextDelay returns the time until the next wake-up.
func (s *Scheduler) nextDelay() time.Duration {
	if !s.opts.AlignToHour {
		return s.opts.PollInterval
	}
	now := s.opts.Now().In(s.opts.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, s.opts.Location)
	d := next.Sub(now)
	if d <= 0 {
		d = time.Minute
	}
	return d
}
