// Package maintenance runs periodic background tasks as Go tickers: the
// catch-up reload for product changes the listener missed, and pruning of
// consumed products.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CleanupInterval   time.Duration // Prune consumed products
	CatchUpInterval   time.Duration // Reload the snapshot in case a NOTIFY was missed
	ConsumedRetention time.Duration // How long consumed products are kept
}

// Execer is the subset of *pgxpool.Pool cleanup needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`. reload may be nil.
func Start(ctx context.Context, db Execer, reload func(context.Context), cfg Config, logger *slog.Logger) {
	logger = logger.With("component", "maintenance")
	logger.Info("Maintenance tickers started",
		"cleanup", cfg.CleanupInterval,
		"catchup", cfg.CatchUpInterval,
		"retention", cfg.ConsumedRetention)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.CleanupInterval > 0 && db != nil {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { Cleanup(ctx, db, cfg.ConsumedRetention, logger) })
	}

	if cfg.CatchUpInterval > 0 && reload != nil {
		t := time.NewTicker(cfg.CatchUpInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { reload(ctx) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Cleanup deletes products consumed longer than retention ago. Returns the
// number of rows removed; failures are logged and reported as zero.
func Cleanup(ctx context.Context, db Execer, retention time.Duration, logger *slog.Logger) int64 {
	if retention <= 0 {
		return 0
	}
	tag, err := db.Exec(ctx, "products_prune", retention.Seconds())
	if err != nil {
		logger.Warn("Cleanup: failed to prune consumed products", "error", err)
		return 0
	}
	if n := tag.RowsAffected(); n > 0 {
		logger.Info("Cleanup: pruned consumed products", "count", n)
		return n
	}
	return 0
}
