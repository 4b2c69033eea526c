// Package products reads the live product listing from Postgres and keeps
// consumers up to date through LISTEN/NOTIFY.
package products

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/expirywatch/internal/expiry"
)

// Querier is the subset of *pgxpool.Pool the repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository lists products that have not been consumed.
type Repository struct {
	db Querier
}

// NewRepository creates a Repository over a pool with the db package's
// prepared statements registered.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// ListProducts implements digest.ProductLister.
func (r *Repository) ListProducts(ctx context.Context) ([]expiry.Product, error) {
	rows, err := r.db.Query(ctx, "products_list")
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (expiry.Product, error) {
		var (
			p       expiry.Product
			expires time.Time
		)
		if err := row.Scan(&p.ID, &p.Name, &p.Source, &expires); err != nil {
			return expiry.Product{}, err
		}
		p.Expiry = expires
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return out, nil
}
