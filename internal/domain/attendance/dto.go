package attendance

import (
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/validator"
)

// ========================================
// REALTIME EVENTS
// ========================================

const (
	EventCheckIn         = "check-in"
	EventCheckOut        = "check-out"
	EventCheckInSuccess  = "check-in-success"
	EventCheckInError    = "check-in-error"
	EventCheckOutSuccess = "check-out-success"
	EventCheckOutError   = "check-out-error"
	EventOriginUpdated   = "origin-updated"
)

// TimeLayout is the ISO8601 layout used on the wire (millisecond precision, UTC).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in the wire layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts any RFC3339 timestamp, with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	t, ok := validator.IsValidDateTime(s)
	if !ok {
		return time.Time{}, ErrInvalidTimestamp
	}
	return t, nil
}

// IntentRequest is the payload of the outbound check-in / check-out events.
type IntentRequest struct {
	UserID string `json:"userId"`
	Date   string `json:"date"`

	// AuthUserID is the token subject of the realtime session, set by the gateway.
	AuthUserID string `json:"-"`
}

func (r *IntentRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.UserID) {
		errs = append(errs, validator.ValidationError{
			Field:   "userId",
			Message: "userId is required",
		})
	}

	if validator.IsEmpty(r.Date) {
		errs = append(errs, validator.ValidationError{
			Field:   "date",
			Message: "date is required",
		})
	} else if _, err := ParseTime(r.Date); err != nil {
		errs = append(errs, validator.ValidationError{
			Field:   "date",
			Message: "date must be an ISO8601 timestamp",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// Record is the attendance shape carried in check results.
type Record struct {
	CheckinTime  string   `json:"checkin_time"`
	CheckoutTime *string  `json:"checkout_time,omitempty"`
	WorkingHours *float64 `json:"working_hours,omitempty"`
}

// CheckResult is the server's answer to an intent. A freshly created record is
// returned under Data, an already existing one under Attendance.
type CheckResult struct {
	Message    string  `json:"message"`
	Data       *Record `json:"data,omitempty"`
	Attendance *Record `json:"attendance,omitempty"`
}

// Record returns whichever record branch the server filled in.
func (r CheckResult) Record() *Record {
	if r.Data != nil {
		return r.Data
	}
	return r.Attendance
}

// SuccessPayload wraps a CheckResult for the *-success events.
type SuccessPayload struct {
	Result CheckResult `json:"result"`
}

// ErrorPayload is sent with the *-error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ========================================
// REST DTOs
// ========================================

type StatsResponse struct {
	TotalDays    int     `json:"total_days"`
	TotalHours   float64 `json:"total_hours"`
	AverageHours float64 `json:"average_hours"`
	MonthDays    int     `json:"month_days"`
	MonthHours   float64 `json:"month_hours"`
}
