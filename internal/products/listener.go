package products

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/expirywatch/internal/expiry"
)

const (
	channel          = "products_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// ChangeEvent is the JSON payload from pg_notify('products_changed', ...).
type ChangeEvent struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// Lister loads the full product listing.
type Lister interface {
	ListProducts(ctx context.Context) ([]expiry.Product, error)
}

// Listener holds a dedicated pgx connection (not from the pool) listening on
// the products_changed channel. Every change reloads the full listing and
// hands it to OnChange; snapshots are never patched incrementally.
type Listener struct {
	dbURL    string
	lister   Lister
	onChange func([]expiry.Product)
	logger   *slog.Logger
}

// NewListener creates a listener. onChange receives each reloaded snapshot.
func NewListener(dbURL string, lister Lister, onChange func([]expiry.Product), logger *slog.Logger) *Listener {
	return &Listener{
		dbURL:    dbURL,
		lister:   lister,
		onChange: onChange,
		logger:   logger.With("component", "products_listener"),
	}
}

// Run listens until ctx is cancelled, reconnecting on connection loss.
// Intended to be called with `go`.
func (l *Listener) Run(ctx context.Context) {
	backoff := reconnectBackoff

	for {
		err := l.listenLoop(ctx)
		if ctx.Err() != nil {
			l.logger.Info("Products listener stopped (context cancelled)")
			return
		}

		l.logger.Error("Products listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func (l *Listener) listenLoop(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	l.logger.Info("Products listener connected", "channel", channel)

	// Changes made while disconnected are picked up here.
	l.Reload(ctx)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.handle(ctx, notification.Payload)
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		l.logger.Warn("Failed to parse product change event", "payload", payload, "error", err)
		// Still reload: the listing is the source of truth.
	} else {
		l.logger.Debug("Product change received", "op", event.Op, "id", event.ID)
	}
	l.Reload(ctx)
}

// Reload fetches the listing and forwards it. Errors are logged; the
// previous snapshot stays in place.
func (l *Listener) Reload(ctx context.Context) {
	products, err := l.lister.ListProducts(ctx)
	if err != nil {
		l.logger.Warn("Failed to reload products", "error", err)
		return
	}
	l.onChange(products)
	l.logger.Info("Product snapshot reloaded", "products", len(products))
}
