package origin

import "context"

type OriginRepository interface {
	// Get returns the configured origin
	Get(ctx context.Context) (Origin, error)

	// Upsert replaces the configured origin
	Upsert(ctx context.Context, origin Origin) (Origin, error)
}
