package origin

import "context"

type OriginService interface {
	Get(ctx context.Context) (OriginResponse, error)

	// Set stores the origin and notifies connected sessions
	Set(ctx context.Context, req SetOriginRequest) (OriginResponse, error)
}
