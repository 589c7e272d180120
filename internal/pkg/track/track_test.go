package track

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTrack = `
# office approach
{"lat":33.5541,"lng":73.1024,"accuracy":8,"at":"2025-03-10T09:00:00Z"}
{"lat":33.5537,"lng":73.1024,"accuracy":5,"heading":90,"at":"2025-03-10T09:00:02Z"}

{"error":"permission_denied"}
`

func TestRead(t *testing.T) {
	points, err := Read(strings.NewReader(sampleTrack))
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, 33.5541, points[0].Lat)
	require.NotNil(t, points[1].Heading)
	assert.Equal(t, 90.0, *points[1].Heading)
	assert.Equal(t, "permission_denied", points[2].Error)
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader("\n# nothing\n"))
	assert.ErrorIs(t, err, ErrEmptyTrack)

	_, err = Read(strings.NewReader(`{"lat":1,"lng":2}` + "\n" + `{bad`))
	assert.ErrorContains(t, err, "line 1")

	_, err = Read(strings.NewReader(`{"lat":1,"lng":2,"at":"2025-03-10T09:00:00Z"}` + "\n" + `{bad`))
	assert.ErrorContains(t, err, "line 2")
}

func TestPoint_Fix(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	fix, err := Point{Lat: 1, Lng: 2, Accuracy: 3, At: at}.Fix()
	require.NoError(t, err)
	assert.Equal(t, presence.Fix{Latitude: 1, Longitude: 2, AccuracyMeters: 3, Timestamp: at}, fix)

	_, err = Point{Error: "unavailable"}.Fix()
	assert.ErrorIs(t, err, presence.ErrPositionUnavailable)
	_, err = Point{Error: "timeout"}.Fix()
	assert.ErrorIs(t, err, presence.ErrSensorTimeout)
	_, err = Point{Error: "melted"}.Fix()
	assert.ErrorContains(t, err, "melted")
}

type delivery struct {
	fix presence.Fix
	err error
}

func TestSource_Play(t *testing.T) {
	points, err := Read(strings.NewReader(sampleTrack))
	require.NoError(t, err)
	src := NewSource(points, 0)

	var got []delivery
	_, err = src.Watch(context.Background(), presence.DefaultWatchOptions(), func(fix presence.Fix, err error) {
		got = append(got, delivery{fix, err})
	})
	require.NoError(t, err)

	require.NoError(t, src.Play(context.Background()))
	require.Len(t, got, 3)
	assert.Equal(t, 33.5541, got[0].fix.Latitude)
	assert.NoError(t, got[1].err)
	assert.ErrorIs(t, got[2].err, presence.ErrPermissionDenied)

	_, err = src.Watch(context.Background(), presence.DefaultWatchOptions(), func(presence.Fix, error) {})
	assert.Error(t, err)
}

// Test recorded gaps are honoured, scaled by speed
func TestSource_PlayPaced(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	points := []Point{{At: at}, {At: at.Add(2 * time.Second)}}
	src := NewSource(points, 50)

	count := 0
	_, err := src.Watch(context.Background(), presence.DefaultWatchOptions(), func(presence.Fix, error) { count++ })
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, src.Play(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 2, count)
}

func TestSource_StopAndCancel(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	points := []Point{{At: at}, {At: at.Add(time.Second)}}

	src := NewSource(points, 0)
	count := 0
	var stop func()
	stop, err := src.Watch(context.Background(), presence.DefaultWatchOptions(), func(presence.Fix, error) {
		count++
		stop()
	})
	require.NoError(t, err)
	require.NoError(t, src.Play(context.Background()))
	assert.Equal(t, 1, count)

	unwatched := NewSource(points, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, unwatched.Play(ctx), context.Canceled)
}
