package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/auth"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/realtime"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGateway(t *testing.T, s *testServer) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.realtime.Connect))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialGateway(t *testing.T, url, bearer string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if bearer != "" {
		header.Set("Authorization", "Bearer "+bearer)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func send(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	env, err := realtime.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func receive(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtime.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestRealtimeHandler_CheckInRoundTrip(t *testing.T) {
	s := newTestServer(t)
	url := startGateway(t, s)

	conn, _, err := dialGateway(t, url, s.token(t, "user-1", auth.RoleEmployee))
	require.NoError(t, err)

	send(t, conn, attendance.EventCheckIn, attendance.IntentRequest{UserID: "user-1", Date: "2025-03-10T09:00:00.000Z"})
	env := receive(t, conn)
	require.Equal(t, attendance.EventCheckInSuccess, env.Event)

	var payload attendance.SuccessPayload
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "Check-in successful", payload.Result.Message)
	require.NotNil(t, payload.Result.Data)
	assert.Equal(t, "2025-03-10T09:00:00.000Z", payload.Result.Data.CheckinTime)

	s.attendance.mu.Lock()
	require.Len(t, s.attendance.intents, 1)
	assert.Equal(t, "user-1", s.attendance.intents[0].AuthUserID)
	s.attendance.mu.Unlock()
}

// Test failures come back on the error event of the same kind, in request order
func TestRealtimeHandler_Errors(t *testing.T) {
	s := newTestServer(t)
	s.attendance.checkOut = attendance.ErrNotCheckedIn
	url := startGateway(t, s)

	conn, _, err := dialGateway(t, url, s.token(t, "user-1", auth.RoleEmployee))
	require.NoError(t, err)

	send(t, conn, attendance.EventCheckIn, attendance.IntentRequest{UserID: "user-2", Date: "2025-03-10T09:00:00.000Z"})
	send(t, conn, "wave", map[string]string{"hello": "there"})
	send(t, conn, attendance.EventCheckOut, attendance.IntentRequest{UserID: "user-1", Date: "2025-03-10T09:30:00.000Z"})
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": attendance.EventCheckIn, "data": 123}))

	var payload attendance.ErrorPayload

	env := receive(t, conn)
	require.Equal(t, attendance.EventCheckInError, env.Event)
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, attendance.ErrUserMismatch.Error(), payload.Message)

	env = receive(t, conn)
	require.Equal(t, attendance.EventCheckOutError, env.Event)
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, attendance.ErrNotCheckedIn.Error(), payload.Message)

	env = receive(t, conn)
	require.Equal(t, attendance.EventCheckInError, env.Event)
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, attendance.ErrMalformedEnvelope.Error(), payload.Message)
}

// Test an intent result only goes back to the connection that sent the intent
func TestRealtimeHandler_ResultStaysOnSendingConnection(t *testing.T) {
	s := newTestServer(t)
	url := startGateway(t, s)
	token := s.token(t, "user-1", auth.RoleEmployee)

	first, _, err := dialGateway(t, url, token)
	require.NoError(t, err)
	second, _, err := dialGateway(t, url, token)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.hub.SubscriberCount("user-1") == 2 }, time.Second, 5*time.Millisecond)

	send(t, first, attendance.EventCheckIn, attendance.IntentRequest{UserID: "user-1", Date: "2025-03-10T09:00:00.000Z"})
	assert.Equal(t, attendance.EventCheckInSuccess, receive(t, first).Event)

	// The next frame the second connection sees is the broadcast, not the result
	env, err := realtime.NewEnvelope(attendance.EventOriginUpdated, map[string]float64{"lat": 1, "lng": 2, "radius": 10})
	require.NoError(t, err)
	s.hub.Broadcast(env)

	assert.Equal(t, attendance.EventOriginUpdated, receive(t, second).Event)
	assert.Equal(t, attendance.EventOriginUpdated, receive(t, first).Event)
}

func TestRealtimeHandler_ReceivesBroadcast(t *testing.T) {
	s := newTestServer(t)
	url := startGateway(t, s)

	conn, _, err := dialGateway(t, url, s.token(t, "user-1", auth.RoleEmployee))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.hub.SubscriberCount("user-1") == 1 }, time.Second, 5*time.Millisecond)

	env, err := realtime.NewEnvelope(attendance.EventOriginUpdated, map[string]float64{"lat": 1, "lng": 2, "radius": 10})
	require.NoError(t, err)
	s.hub.Broadcast(env)

	got := receive(t, conn)
	assert.Equal(t, attendance.EventOriginUpdated, got.Event)
	assert.JSONEq(t, `{"lat":1,"lng":2,"radius":10}`, string(got.Data))
}

// Test the subscription is released when the client goes away
func TestRealtimeHandler_CleanupOnClose(t *testing.T) {
	s := newTestServer(t)
	url := startGateway(t, s)

	conn, _, err := dialGateway(t, url, s.token(t, "user-1", auth.RoleEmployee))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.hub.SubscriberCount("user-1") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return s.hub.TotalSubscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRealtimeHandler_QueryTokenIsSingleUse(t *testing.T) {
	s := newTestServer(t)
	url := startGateway(t, s)

	token, _, err := s.jwt.GenerateRealtimeToken("user-1")
	require.NoError(t, err)

	conn, _, err := dialGateway(t, url+"?token="+token, "")
	require.NoError(t, err)
	send(t, conn, attendance.EventCheckIn, attendance.IntentRequest{UserID: "user-1", Date: "2025-03-10T09:00:00.000Z"})
	assert.Equal(t, attendance.EventCheckInSuccess, receive(t, conn).Event)

	_, resp, err := dialGateway(t, url+"?token="+token, "")
	require.True(t, errors.Is(err, websocket.ErrBadHandshake))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRealtimeHandler_Unauthorized(t *testing.T) {
	s := newTestServer(t)
	url := startGateway(t, s)

	access := s.token(t, "user-1", auth.RoleEmployee)
	realtimeToken, _, err := s.jwt.GenerateRealtimeToken("user-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		url    string
		bearer string
	}{
		{"no token", url, ""},
		{"garbage bearer", url, "not-a-jwt"},
		{"access token in query", url + "?token=" + access, ""},
		{"realtime token as bearer", url, realtimeToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := dialGateway(t, tt.url, tt.bearer)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}
