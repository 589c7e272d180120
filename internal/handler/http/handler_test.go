package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/config"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/auth"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/origin"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/realtime"
	originService "github.com/cmlabs-hris/hris-presence-go/internal/service/origin"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handlerTestSecret = "test-secret-key-for-jwt"

// fakeAttendanceService answers intents without a database.
type fakeAttendanceService struct {
	mu       sync.Mutex
	intents  []attendance.IntentRequest
	today    *attendance.Record
	stats    attendance.StatsResponse
	checkOut error
}

func (f *fakeAttendanceService) CheckIn(_ context.Context, req attendance.IntentRequest) (attendance.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, req)
	if req.AuthUserID != "" && req.AuthUserID != req.UserID {
		return attendance.CheckResult{}, attendance.ErrUserMismatch
	}
	return attendance.CheckResult{
		Message: "Check-in successful",
		Data:    &attendance.Record{CheckinTime: req.Date},
	}, nil
}

func (f *fakeAttendanceService) CheckOut(_ context.Context, req attendance.IntentRequest) (attendance.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, req)
	if f.checkOut != nil {
		return attendance.CheckResult{}, f.checkOut
	}
	hours := 0.5
	out := req.Date
	return attendance.CheckResult{
		Message: "Check-out successful",
		Data:    &attendance.Record{CheckinTime: req.Date, CheckoutTime: &out, WorkingHours: &hours},
	}, nil
}

func (f *fakeAttendanceService) Today(context.Context, string) (attendance.Record, error) {
	if f.today == nil {
		return attendance.Record{}, attendance.ErrAttendanceNotFound
	}
	return *f.today, nil
}

func (f *fakeAttendanceService) Stats(context.Context, string) (attendance.StatsResponse, error) {
	return f.stats, nil
}

func (f *fakeAttendanceService) AutoCloseStale(context.Context, time.Duration) (int, error) {
	return 0, nil
}

type memoryOriginRepository struct {
	origin *origin.Origin
}

func (m *memoryOriginRepository) Get(context.Context) (origin.Origin, error) {
	if m.origin == nil {
		return origin.Origin{}, pgx.ErrNoRows
	}
	return *m.origin, nil
}

func (m *memoryOriginRepository) Upsert(_ context.Context, o origin.Origin) (origin.Origin, error) {
	o.ID = "1"
	m.origin = &o
	return o, nil
}

type testServer struct {
	router     http.Handler
	jwt        jwt.Service
	hub        *realtime.Hub
	attendance *fakeAttendanceService
	realtime   RealtimeHandler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	jwtService := jwt.NewJWTService(handlerTestSecret, "1h")
	hub := realtime.NewHub()
	svc := &fakeAttendanceService{}
	rt := NewRealtimeHandler(svc, jwtService, hub, RealtimeConfig{AllowedOrigins: []string{"*"}})

	router := NewRouter(
		config.AppConfig{Name: "hris-presence-test", Version: "test", Env: "test", AllowedOrigins: []string{"*"}},
		jwtService,
		NewAttendanceHandler(svc),
		NewOriginHandler(originService.NewOriginService(&memoryOriginRepository{}, hub)),
		rt,
	)

	return &testServer{router: router, jwt: jwtService, hub: hub, attendance: svc, realtime: rt}
}

func (s *testServer) token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	token, _, err := s.jwt.GenerateAccessToken(userID, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type envelopeResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) envelopeResponse {
	t.Helper()
	var resp envelopeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/attendance/today", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/attendance/today", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Test a realtime token cannot be used on the REST surface
func TestRouter_RejectsRealtimeToken(t *testing.T) {
	s := newTestServer(t)
	token, _, err := s.jwt.GenerateRealtimeToken("user-1")
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/v1/attendance/stats", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAttendanceHandler_Today(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "user-1", auth.RoleEmployee)

	rec := s.do(t, http.MethodGet, "/api/v1/attendance/today", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.attendance.today = &attendance.Record{CheckinTime: "2025-03-10T09:00:00.000Z"}
	rec = s.do(t, http.MethodGet, "/api/v1/attendance/today", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"checkin_time":"2025-03-10T09:00:00.000Z"}`, string(resp.Data))
}

func TestAttendanceHandler_Stats(t *testing.T) {
	s := newTestServer(t)
	s.attendance.stats = attendance.StatsResponse{TotalDays: 3, TotalHours: 2, AverageHours: 0.67, MonthDays: 2, MonthHours: 1}

	rec := s.do(t, http.MethodGet, "/api/v1/attendance/stats", s.token(t, "user-1", auth.RoleEmployee), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats attendance.StatsResponse
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &stats))
	assert.Equal(t, s.attendance.stats, stats)
}

func TestOriginHandler(t *testing.T) {
	s := newTestServer(t)
	employee := s.token(t, "user-1", auth.RoleEmployee)
	admin := s.token(t, "admin-1", auth.RoleAdmin)

	rec := s.do(t, http.MethodGet, "/api/v1/origins/get-origins", employee, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := map[string]float64{"lat": 33.5537, "lng": 73.1024}

	rec = s.do(t, http.MethodPut, "/api/v1/origins/set-origins", employee, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	updates, cleanup := s.hub.Subscribe("user-1")
	defer cleanup()

	rec = s.do(t, http.MethodPut, "/api/v1/origins/set-origins", admin, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/origins/get-origins", employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lat":33.5537,"lng":73.1024,"radius":10}`, string(decodeResponse(t, rec).Data))

	select {
	case env := <-updates:
		assert.Equal(t, attendance.EventOriginUpdated, env.Event)
	default:
		t.Fatal("origin update was not broadcast")
	}
}

func TestOriginHandler_SetValidation(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin-1", auth.RoleAdmin)

	rec := s.do(t, http.MethodPut, "/api/v1/origins/set-origins", admin, map[string]float64{"lat": 95, "radius": -1})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Details, "lat")
	assert.Contains(t, resp.Error.Details, "lng")
	assert.Contains(t, resp.Error.Details, "radius")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/origins/set-origins", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+admin)
	req.Header.Set("Content-Type", "application/json")
	bad := httptest.NewRecorder()
	s.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestRealtimeHandler_GetToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/realtime/token", s.token(t, "user-1", auth.RoleEmployee), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp auth.RealtimeTokenResponse
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &resp))
	assert.Equal(t, 300, resp.ExpiresIn)

	userID, err := s.jwt.ValidateRealtimeToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}
