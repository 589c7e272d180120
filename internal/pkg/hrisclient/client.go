package hrisclient

import (
	"context"
	"net/http"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/auth"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/origin"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
)

// Client reads the bootstrap state a presence session needs from the HRIS server.
type Client struct {
	Transport *Transport
}

func NewClient(baseURL, token string) *Client {
	return &Client{Transport: NewTransport(baseURL, token)}
}

// Origin fetches the configured office origin. A missing or non-positive
// radius falls back to the default.
func (c *Client) Origin(ctx context.Context) (*presence.Origin, error) {
	var resp origin.OriginResponse
	if err := c.Transport.Do(ctx, http.MethodGet, "/api/v1/origins/get-origins", nil, &resp); err != nil {
		return nil, err
	}

	radius := resp.Radius
	if radius <= 0 {
		radius = presence.DefaultRadiusMeters
	}
	return &presence.Origin{
		Latitude:     resp.Lat,
		Longitude:    resp.Lng,
		RadiusMeters: radius,
	}, nil
}

// Today returns today's attendance record, ErrNotFound when there is none.
func (c *Client) Today(ctx context.Context) (attendance.Record, error) {
	var rec attendance.Record
	err := c.Transport.Do(ctx, http.MethodGet, "/api/v1/attendance/today", nil, &rec)
	return rec, err
}

func (c *Client) Stats(ctx context.Context) (attendance.StatsResponse, error) {
	var stats attendance.StatsResponse
	err := c.Transport.Do(ctx, http.MethodGet, "/api/v1/attendance/stats", nil, &stats)
	return stats, err
}

// RealtimeToken exchanges the access token for a single-use websocket token.
func (c *Client) RealtimeToken(ctx context.Context) (auth.RealtimeTokenResponse, error) {
	var resp auth.RealtimeTokenResponse
	err := c.Transport.Do(ctx, http.MethodPost, "/api/v1/realtime/token", nil, &resp)
	return resp, err
}
