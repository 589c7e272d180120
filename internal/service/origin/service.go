package origin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/origin"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/realtime"
	"github.com/jackc/pgx/v5"
)

// Broadcaster fans an event out to every connected realtime session.
type Broadcaster interface {
	Broadcast(event realtime.Envelope)
}

type OriginServiceImpl struct {
	origin.OriginRepository
	hub Broadcaster
}

// Get implements origin.OriginService.
func (s *OriginServiceImpl) Get(ctx context.Context) (origin.OriginResponse, error) {
	o, err := s.OriginRepository.Get(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return origin.OriginResponse{}, origin.ErrOriginNotFound
		}
		return origin.OriginResponse{}, fmt.Errorf("failed to get origin: %w", err)
	}
	return origin.ToResponse(o), nil
}

// Set implements origin.OriginService.
func (s *OriginServiceImpl) Set(ctx context.Context, req origin.SetOriginRequest) (origin.OriginResponse, error) {
	if err := req.Validate(); err != nil {
		return origin.OriginResponse{}, err
	}

	radius := float64(origin.DefaultRadiusMeters)
	if req.Radius != nil {
		radius = *req.Radius
	}

	data := origin.Origin{
		Latitude:     *req.Lat,
		Longitude:    *req.Lng,
		RadiusMeters: radius,
	}
	if req.UpdatedBy != "" {
		data.UpdatedBy = &req.UpdatedBy
	}

	saved, err := s.OriginRepository.Upsert(ctx, data)
	if err != nil {
		return origin.OriginResponse{}, fmt.Errorf("failed to save origin: %w", err)
	}

	resp := origin.ToResponse(saved)
	if s.hub != nil {
		env, err := realtime.NewEnvelope(attendance.EventOriginUpdated, resp)
		if err != nil {
			slog.Error("Failed to encode origin update", "error", err)
		} else {
			s.hub.Broadcast(env)
		}
	}

	slog.Info("Origin updated", "lat", resp.Lat, "lng", resp.Lng, "radius", resp.Radius, "updated_by", req.UpdatedBy)
	return resp, nil
}

func NewOriginService(originRepository origin.OriginRepository, hub Broadcaster) origin.OriginService {
	return &OriginServiceImpl{
		OriginRepository: originRepository,
		hub:              hub,
	}
}
