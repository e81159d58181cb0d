package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no agent_settings row exists for a location.
var ErrNotFound = errors.New("agent settings not found")

// DefaultLocation is the location_id of the organisation-wide settings row.
const DefaultLocation = ""

const selectOverridesQuery = `
	SELECT location_id, agent_name, company_name, service_label, scheduling_link,
		website, opening_hours, phone_number, timezone, open_hour, close_hour, updated_at
	FROM agent_settings
	WHERE location_id = $1`

// Repository reads agent_settings rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a settings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOverrides returns the stored overrides for a location.
func (r *Repository) GetOverrides(ctx context.Context, locationID string) (Overrides, error) {
	var o Overrides
	err := r.pool.QueryRow(ctx, selectOverridesQuery, locationID).Scan(
		&o.LocationID, &o.AgentName, &o.CompanyName, &o.ServiceLabel, &o.SchedulingLink,
		&o.Website, &o.OpeningHours, &o.PhoneNumber, &o.Timezone, &o.OpenHour, &o.CloseHour, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Overrides{}, ErrNotFound
	}
	if err != nil {
		return Overrides{}, err
	}
	return o, nil
}
