package presence

import (
	"math"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
)

// Confirmation is a server result normalized to the fields the ledger uses.
type Confirmation struct {
	Message       string
	CheckInAt     *time.Time
	CheckOutAt    *time.Time
	WorkedSeconds *int64
}

// NormalizeResult folds the "data" and "attendance" result branches into a Confirmation.
func NormalizeResult(res attendance.CheckResult) (Confirmation, error) {
	rec := res.Record()
	if rec == nil {
		return Confirmation{}, ErrMissingRecord
	}

	conf := Confirmation{Message: res.Message}

	if rec.CheckinTime == "" {
		return Confirmation{}, ErrNoCheckInTime
	}
	in, err := attendance.ParseTime(rec.CheckinTime)
	if err != nil {
		return Confirmation{}, err
	}
	conf.CheckInAt = &in

	if rec.CheckoutTime != nil && *rec.CheckoutTime != "" {
		out, err := attendance.ParseTime(*rec.CheckoutTime)
		if err != nil {
			return Confirmation{}, err
		}
		conf.CheckOutAt = &out
	}

	if rec.WorkingHours != nil {
		secs := WorkedSecondsFromHours(*rec.WorkingHours)
		conf.WorkedSeconds = &secs
	}

	return conf, nil
}

// WorkedSecondsFromHours converts fractional hours to whole seconds, floored.
// A tiny epsilon absorbs binary representation error (0.3h must give 1080, not 1079).
func WorkedSecondsFromHours(hours float64) int64 {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return 0
	}
	return int64(math.Floor(hours*3600 + 1e-6))
}
