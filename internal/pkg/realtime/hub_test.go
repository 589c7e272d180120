package realtime

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	ch1, cleanup1 := hub.Subscribe("user-1")
	defer cleanup1()
	ch2, cleanup2 := hub.Subscribe("user-2")
	defer cleanup2()

	hub.Broadcast(Envelope{Event: "origin-updated"})

	assert.Len(t, ch1, 1)
	assert.Len(t, ch2, 1)
}

func TestHub_Cleanup(t *testing.T) {
	hub := NewHub()
	_, cleanup1 := hub.Subscribe("user-1")
	ch2, cleanup2 := hub.Subscribe("user-1")
	assert.Equal(t, 2, hub.SubscriberCount("user-1"))
	assert.Equal(t, 2, hub.TotalSubscribers())

	cleanup2()
	cleanup2()
	_, open := <-ch2
	assert.False(t, open)
	assert.Equal(t, 1, hub.SubscriberCount("user-1"))

	cleanup1()
	assert.Equal(t, 0, hub.SubscriberCount("user-1"))
	assert.Equal(t, 0, hub.TotalSubscribers())
}

// Test a slow subscriber never blocks the broadcaster and the drop is logged
func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	hub := NewHub()
	ch, cleanup := hub.Subscribe("user-1")
	defer cleanup()

	for i := 0; i < cap(ch)+10; i++ {
		hub.Broadcast(Envelope{Event: "origin-updated"})
	}

	assert.Len(t, ch, cap(ch))
	assert.Contains(t, logs.String(), "user_id=user-1")
	assert.Contains(t, logs.String(), "event=origin-updated")
}

func TestEnvelope_Decode(t *testing.T) {
	env, err := NewEnvelope("check-in-error", map[string]string{"message": "nope"})
	require.NoError(t, err)

	var payload struct {
		Message string `json:"message"`
	}
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "nope", payload.Message)

	empty, err := NewEnvelope("check-in-error", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, empty.Decode(&payload), ErrEmptyPayload)
}
