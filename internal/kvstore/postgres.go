package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores keys in the notification_state table. The statements are
// registered on every pooled connection by the db package.
type Postgres struct {
	pool *pgxpool.Pool
	// scope separates keys of different client instances sharing a database.
	scope string
}

// NewPostgres creates a Postgres-backed store. scope may be empty.
func NewPostgres(pool *pgxpool.Pool, scope string) *Postgres {
	return &Postgres{pool: pool, scope: scope}
}

// Get retrieves a value by key.
func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.pool.QueryRow(ctx, "state_get", p.scope, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return v, true, nil
}

// Set upserts a value by key.
func (p *Postgres) Set(ctx context.Context, key, value string) error {
	if _, err := p.pool.Exec(ctx, "state_set", p.scope, key, value); err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, "state_delete", p.scope, key); err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}
