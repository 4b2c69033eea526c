package kvstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the common surface of every backend.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Open returns the backend by name. path is used by the file backend;
// pool and scope by the postgres backend.
func Open(backend, path string, pool *pgxpool.Pool, scope string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		if path == "" {
			return nil, fmt.Errorf("file state backend needs a path")
		}
		return NewFile(path), nil
	case BackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres state backend needs a database")
		}
		return NewPostgres(pool, scope), nil
	}
	return nil, fmt.Errorf("unknown state backend %q", backend)
}
