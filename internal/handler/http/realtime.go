package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/auth"
	"github.com/cmlabs-hris/hris-presence-go/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/realtime"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPingInterval = 54 * time.Second
	writeWait           = 10 * time.Second
	maxMessageSize      = 4096
	resultBufferSize    = 16
)

// RealtimeHandler serves the websocket gateway used by presence agents.
type RealtimeHandler interface {
	GetToken(w http.ResponseWriter, r *http.Request)
	Connect(w http.ResponseWriter, r *http.Request)
}

type RealtimeConfig struct {
	// AllowedOrigins lists browser origins allowed to open the socket. "*" allows any.
	AllowedOrigins []string
	PingInterval   time.Duration
}

type realtimeHandlerImpl struct {
	attendanceService attendance.AttendanceService
	jwtService        jwt.Service
	hub               *realtime.Hub
	upgrader          websocket.Upgrader
	pingInterval      time.Duration
}

func NewRealtimeHandler(
	attendanceService attendance.AttendanceService,
	jwtService jwt.Service,
	hub *realtime.Hub,
	cfg RealtimeConfig,
) RealtimeHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}

	return &realtimeHandlerImpl{
		attendanceService: attendanceService,
		jwtService:        jwtService,
		hub:               hub,
		pingInterval:      cfg.PingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// GetToken generates a short-lived token for clients that cannot send an Authorization header
func (h *realtimeHandlerImpl) GetToken(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r)
	if userID == "" {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	token, expiresIn, err := h.jwtService.GenerateRealtimeToken(userID)
	if err != nil {
		slog.Error("Failed to generate realtime token", "user_id", userID, "error", err)
		response.InternalServerError(w, "Failed to generate realtime token")
		return
	}

	response.Success(w, auth.RealtimeTokenResponse{
		Token:     token,
		ExpiresIn: expiresIn,
	})
}

// Connect upgrades the request and serves check-in / check-out events until the client leaves.
func (h *realtimeHandlerImpl) Connect(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		slog.Warn("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	logger := slog.With("conn_id", uuid.NewString(), "user_id", userID)
	logger.Info("Realtime session opened", "subscribers", h.hub.SubscriberCount(userID)+1)

	events, cleanup := h.hub.Subscribe(userID)
	defer cleanup()

	// Intent results carry no correlation id, so they only go back on this connection.
	results := make(chan realtime.Envelope, resultBufferSize)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		defer conn.Close()
		return h.writeLoop(ctx, conn, events, results)
	})
	g.Go(func() error {
		return h.readLoop(ctx, conn, userID, results, logger)
	})

	err = g.Wait()
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Debug("Realtime session ended", "error", err)
	}
	logger.Info("Realtime session closed")
}

// authenticate accepts a single-use realtime token in ?token= or an access token
// in the Authorization header.
func (h *realtimeHandlerImpl) authenticate(r *http.Request) (string, error) {
	if tokenStr := r.URL.Query().Get("token"); tokenStr != "" {
		if h.jwtService.IsTokenRevoked(tokenStr) {
			return "", auth.ErrInvalidToken
		}
		userID, err := h.jwtService.ValidateRealtimeToken(tokenStr)
		if err != nil {
			return "", auth.ErrInvalidToken
		}
		h.jwtService.RevokeToken(tokenStr)
		return userID, nil
	}

	tokenStr := jwtauth.TokenFromHeader(r)
	if tokenStr == "" {
		return "", auth.ErrInvalidToken
	}
	token, err := jwtauth.VerifyToken(h.jwtService.JWTAuth(), tokenStr)
	if err != nil {
		return "", auth.ErrInvalidToken
	}
	claims, err := token.AsMap(r.Context())
	if err != nil {
		return "", auth.ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != auth.TokenTypeAccess {
		return "", auth.ErrInvalidToken
	}
	return auth.UserIDFromClaims(claims)
}

// readLoop handles inbound frames one at a time so results go out in request order.
func (h *realtimeHandlerImpl) readLoop(ctx context.Context, conn *websocket.Conn, userID string, results chan<- realtime.Envelope, logger *slog.Logger) error {
	pongWait := h.pingInterval * 10 / 9
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warn("Dropping malformed realtime frame", "error", err)
			continue
		}

		var reply *realtime.Envelope
		switch env.Event {
		case attendance.EventCheckIn:
			reply = h.handleIntent(ctx, userID, env, h.attendanceService.CheckIn,
				attendance.EventCheckInSuccess, attendance.EventCheckInError, logger)
		case attendance.EventCheckOut:
			reply = h.handleIntent(ctx, userID, env, h.attendanceService.CheckOut,
				attendance.EventCheckOutSuccess, attendance.EventCheckOutError, logger)
		default:
			logger.Warn("Ignoring realtime event", "event", env.Event, "error", attendance.ErrUnknownEvent)
		}
		if reply == nil {
			continue
		}

		select {
		case results <- *reply:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *realtimeHandlerImpl) handleIntent(
	ctx context.Context,
	userID string,
	env realtime.Envelope,
	fn func(context.Context, attendance.IntentRequest) (attendance.CheckResult, error),
	successEvent, errorEvent string,
	logger *slog.Logger,
) *realtime.Envelope {
	var req attendance.IntentRequest
	if err := env.Decode(&req); err != nil {
		logger.Warn("Malformed intent payload", "event", env.Event, "error", err)
		return encodeReply(errorEvent, attendance.ErrorPayload{Message: response.Message(attendance.ErrMalformedEnvelope)}, logger)
	}
	req.AuthUserID = userID

	result, err := fn(ctx, req)
	if err != nil {
		logger.Warn("Intent rejected", "event", env.Event, "error", err)
		return encodeReply(errorEvent, attendance.ErrorPayload{Message: response.Message(err)}, logger)
	}

	return encodeReply(successEvent, attendance.SuccessPayload{Result: result}, logger)
}

func encodeReply(event string, payload interface{}, logger *slog.Logger) *realtime.Envelope {
	env, err := realtime.NewEnvelope(event, payload)
	if err != nil {
		logger.Error("Failed to encode realtime event", "event", event, "error", err)
		return nil
	}
	return &env
}

func (h *realtimeHandlerImpl) writeLoop(ctx context.Context, conn *websocket.Conn, events, results <-chan realtime.Envelope) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return errors.New("subscription closed")
			}
			if err := conn.WriteJSON(env); err != nil {
				return err
			}
		case env := <-results:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		}
	}
}
