package validator

import (
	"math"
	"testing"
	"time"
)

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"abc", false},
		{" abc ", false},
	}
	for _, c := range cases {
		got := IsEmpty(c.input)
		if got != c.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestIsInSlice(t *testing.T) {
	slice := []string{"access", "realtime"}
	if !IsInSlice("access", slice) {
		t.Errorf("IsInSlice('access') = false, want true")
	}
	if IsInSlice("refresh", slice) {
		t.Errorf("IsInSlice('refresh') = true, want false")
	}
}

func TestCoordinates(t *testing.T) {
	cases := []struct {
		lat, lng         float64
		wantLat, wantLng bool
	}{
		{33.5537, 73.1024, true, true},
		{90, 180, true, true},
		{-90, -180, true, true},
		{90.0001, 180.0001, false, false},
		{math.NaN(), math.Inf(1), false, false},
	}
	for _, c := range cases {
		if got := IsValidLatitude(c.lat); got != c.wantLat {
			t.Errorf("IsValidLatitude(%v) = %v, want %v", c.lat, got, c.wantLat)
		}
		if got := IsValidLongitude(c.lng); got != c.wantLng {
			t.Errorf("IsValidLongitude(%v) = %v, want %v", c.lng, got, c.wantLng)
		}
	}
}

func TestIsValidDateTime(t *testing.T) {
	valid := map[string]time.Time{
		"2025-03-10T09:00:00Z":      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		"2025-03-10T09:00:00.250Z":  time.Date(2025, 3, 10, 9, 0, 0, 250_000_000, time.UTC),
		"2025-03-10T16:00:00+07:00": time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	for input, want := range valid {
		got, ok := IsValidDateTime(input)
		if !ok || !got.Equal(want) {
			t.Errorf("IsValidDateTime(%q) = %v, %v, want %v, true", input, got, ok, want)
		}
	}

	invalid := []string{"", "2025-03-10", "10/03/2025 09:00", "yesterday"}
	for _, input := range invalid {
		if _, ok := IsValidDateTime(input); ok {
			t.Errorf("IsValidDateTime(%q) = true, want false", input)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "userId", Message: "userId is required"},
		{Field: "date", Message: "date is required"},
	}
	got := errs.Error()
	want := "userId: userId is required; date: date is required"
	if got != want {
		t.Errorf("ValidationErrors.Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_ToMap(t *testing.T) {
	errs := ValidationErrors{
		{Field: "lat", Message: "lat is required"},
		{Field: "radius", Message: "radius must be greater than 0"},
	}
	got := errs.ToMap()
	want := map[string]string{"lat": "lat is required", "radius": "radius must be greater than 0"}
	if len(got) != len(want) {
		t.Errorf("ValidationErrors.ToMap() length = %d, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ValidationErrors.ToMap()[%q] = %q, want %q", k, got[k], v)
		}
	}
}
