package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/origin"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

// The origins table holds a single row keyed by id = 1.
type originRepository struct {
	db *database.DB
}

// Get implements origin.OriginRepository.
func (r *originRepository) Get(ctx context.Context) (origin.Origin, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id::text, latitude, longitude, radius_meters, updated_by, updated_at
		FROM origins
		WHERE id = 1
	`

	var o origin.Origin
	err := q.QueryRow(ctx, query).Scan(
		&o.ID, &o.Latitude, &o.Longitude, &o.RadiusMeters, &o.UpdatedBy, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return origin.Origin{}, err
		}
		return origin.Origin{}, fmt.Errorf("failed to get origin: %w", err)
	}

	return o, nil
}

// Upsert implements origin.OriginRepository.
func (r *originRepository) Upsert(ctx context.Context, o origin.Origin) (origin.Origin, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO origins (id, latitude, longitude, radius_meters, updated_by, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			radius_meters = EXCLUDED.radius_meters,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id::text, updated_at
	`

	err := q.QueryRow(ctx, query, o.Latitude, o.Longitude, o.RadiusMeters, o.UpdatedBy).Scan(&o.ID, &o.UpdatedAt)
	if err != nil {
		return origin.Origin{}, fmt.Errorf("failed to upsert origin: %w", err)
	}

	return o, nil
}

func NewOriginRepository(db *database.DB) origin.OriginRepository {
	return &originRepository{db: db}
}
