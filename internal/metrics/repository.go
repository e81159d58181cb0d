package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// incrementDailyQuery adds to the stored value instead of overwriting it.
const incrementDailyQuery = `
	INSERT INTO daily_metrics (day, location_id, name, value)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (day, location_id, name) DO UPDATE
	SET value = daily_metrics.value + EXCLUDED.value`

// Repository stores daily counters.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a metrics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IncrementDaily adds n to the counter for the given day and location.
func (r *Repository) IncrementDaily(ctx context.Context, day time.Time, locationID string, name Name, n int64) error {
	_, err := r.pool.Exec(ctx, incrementDailyQuery, day, locationID, string(name), n)
	return err
}
