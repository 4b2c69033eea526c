package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/albapepper/expirywatch/internal/expiry"
)

// KV is the persisted key-value collaborator, scoped to one client
// instance. See the kvstore package for implementations.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// StateStore persists the last calendar day a notification was delivered.
// It is a dedup guard, not a lock: two processes sharing the same KV can
// both fire on the same day (last write wins).
type StateStore struct {
	kv     KV
	logger *slog.Logger
}

// NewStateStore wraps kv.
func NewStateStore(kv KV, logger *slog.Logger) *StateStore {
	return &StateStore{kv: kv, logger: logger}
}

// LastFiredDay returns the stored day. A missing or unparsable value is
// reported as absent.
func (s *StateStore) LastFiredDay(ctx context.Context) (expiry.Day, bool, error) {
	raw, ok, err := s.kv.Get(ctx, lastFiredDayKey)
	if err != nil {
		return expiry.Day{}, false, fmt.Errorf("read last fired day: %w", err)
	}
	if !ok || raw == "" {
		return expiry.Day{}, false, nil
	}

	day, err := expiry.ParseDay(raw)
	if err != nil {
		s.logger.Warn("Ignoring malformed last fired day", "value", raw, "error", err)
		return expiry.Day{}, false, nil
	}
	return day, true, nil
}

// SetLastFiredDay records day as delivered.
func (s *StateStore) SetLastFiredDay(ctx context.Context, day expiry.Day) error {
	if err := s.kv.Set(ctx, lastFiredDayKey, day.String()); err != nil {
		return fmt.Errorf("write last fired day: %w", err)
	}
	return nil
}

// Reset forgets the stored day so the next tick at the trigger hour fires
// again. It deletes the key when the backend supports it and otherwise
// writes an empty value, which LastFiredDay reports as absent.
func (s *StateStore) Reset(ctx context.Context) error {
	if d, ok := s.kv.(interface {
		Delete(ctx context.Context, key string) error
	}); ok {
		if err := d.Delete(ctx, lastFiredDayKey); err != nil {
			return fmt.Errorf("reset last fired day: %w", err)
		}
		return nil
	}
	if err := s.kv.Set(ctx, lastFiredDayKey, ""); err != nil {
		return fmt.Errorf("reset last fired day: %w", err)
	}
	return nil
}
