package attendance

import (
	"time"
)

// Attendance status values.
const (
	StatusCheckedIn  = "checked_in"
	StatusCheckedOut = "checked_out"
	StatusAutoClosed = "auto_closed"
)

type Attendance struct {
	ID                 string
	UserID             string
	Date               time.Time
	ClockIn            *time.Time
	ClockOut           *time.Time
	WorkHoursInMinutes *int
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsOpen reports whether the session has a clock-in without a clock-out.
func (a Attendance) IsOpen() bool {
	return a.ClockIn != nil && a.ClockOut == nil
}

// WorkingHours returns the fractional hours between clock-in and clock-out.
// Open sessions have no working hours yet.
func (a Attendance) WorkingHours() *float64 {
	if a.ClockIn == nil || a.ClockOut == nil {
		return nil
	}
	hours := a.ClockOut.Sub(*a.ClockIn).Hours()
	if hours < 0 {
		hours = 0
	}
	return &hours
}

// ToRecord maps the entity to the wire record pushed over the realtime channel.
func (a Attendance) ToRecord() Record {
	var rec Record
	if a.ClockIn != nil {
		rec.CheckinTime = FormatTime(*a.ClockIn)
	}
	if a.ClockOut != nil {
		out := FormatTime(*a.ClockOut)
		rec.CheckoutTime = &out
	}
	rec.WorkingHours = a.WorkingHours()
	return rec
}

// Stats aggregates closed sessions for a user.
type Stats struct {
	TotalDays    int
	TotalMinutes int64
	MonthDays    int
	MonthMinutes int64
}
