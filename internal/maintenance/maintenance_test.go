package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	mu    sync.Mutex
	calls []any
	tag   string
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]any{sql}, args...))
	return pgconn.NewCommandTag(f.tag), f.err
}

func (f *fakeExecer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCleanup(t *testing.T) {
	db := &fakeExecer{tag: "DELETE 3"}
	n := Cleanup(context.Background(), db, 48*time.Hour, discard())
	assert.Equal(t, int64(3), n)
	require.Len(t, db.calls, 1)
	assert.Equal(t, []any{"products_prune", float64(172800)}, db.calls[0])

	assert.Zero(t, Cleanup(context.Background(), db, 0, discard()), "zero retention disables pruning")
	assert.Len(t, db.calls, 1)

	failing := &fakeExecer{err: errors.New("boom")}
	assert.Zero(t, Cleanup(context.Background(), failing, time.Hour, discard()))
}

func TestStart_RunsTasksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db := &fakeExecer{tag: "DELETE 0"}
	var reloads atomic.Int32

	done := make(chan struct{})
	go func() {
		Start(ctx, db, func(context.Context) { reloads.Add(1) }, Config{
			CleanupInterval:   5 * time.Millisecond,
			CatchUpInterval:   5 * time.Millisecond,
			ConsumedRetention: time.Hour,
		}, discard())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return reloads.Load() >= 2 && db.count() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStart_DisabledTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	db := &fakeExecer{}

	Start(ctx, db, nil, Config{CatchUpInterval: time.Millisecond}, discard())
	assert.Zero(t, db.count())
}
