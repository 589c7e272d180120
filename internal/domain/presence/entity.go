package presence

import (
	"time"
)

// Fixed thresholds of the presence engine.
const (
	AccuracyThresholdMeters = 30
	DefaultRadiusMeters     = 10
)

// Sample is one accepted location reading.
type Sample struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	HeadingDegrees *float64
	CapturedAt     time.Time

	// Valid is advisory: false for inaccurate fixes and sensor errors.
	Valid bool
	// Err is set when the sample stands in for a failed acquisition.
	Err error
}

// Origin is the geofence reference point. The engine only reads it.
type Origin struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// Snapshot is a sample evaluated against the current origin.
// InsideZone == (DistanceMeters <= origin radius) whenever OriginKnown is true.
type Snapshot struct {
	Sample         Sample
	DistanceMeters float64
	InsideZone     bool
	OriginKnown    bool
}

// Valid mirrors the validity of the underlying sample.
func (s Snapshot) Valid() bool {
	return s.Sample.Valid
}

type Membership int

const (
	MembershipUnknown Membership = iota
	MembershipOutside
	MembershipInside
)

func (m Membership) String() string {
	switch m {
	case MembershipOutside:
		return "outside"
	case MembershipInside:
		return "inside"
	default:
		return "unknown"
	}
}

type ClockStatus int

const (
	ClockedOut ClockStatus = iota
	ClockedIn
)

func (c ClockStatus) String() string {
	if c == ClockedIn {
		return "clocked_in"
	}
	return "clocked_out"
}

type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentCheckIn
	IntentCheckOut
)

func (k IntentKind) String() string {
	switch k {
	case IntentCheckIn:
		return "check_in"
	case IntentCheckOut:
		return "check_out"
	default:
		return "none"
	}
}

// State is owned by the state machine for the lifetime of a session.
type State struct {
	Membership            Membership
	ClockStatus           ClockStatus
	LastConfirmedCheckIn  *time.Time
	LastConfirmedCheckOut *time.Time
	PendingIntent         IntentKind
}

// NewState returns the session-start state: Unknown / ClockedOut / no pending intent.
func NewState() State {
	return State{
		Membership:    MembershipUnknown,
		ClockStatus:   ClockedOut,
		PendingIntent: IntentNone,
	}
}

// Intent is a locally decided check-in or check-out, applied optimistically.
type Intent struct {
	ID     string
	Seq    uint64
	Kind   IntentKind
	UserID string
	At     time.Time

	// PriorStatus is restored if the server rejects the intent.
	PriorStatus ClockStatus
}

type Source int

const (
	SourceOptimistic Source = iota
	SourceConfirmed
)

func (s Source) String() string {
	if s == SourceConfirmed {
		return "confirmed"
	}
	return "optimistic"
}

// LedgerEntry is one clock value as rendered to the user.
type LedgerEntry struct {
	Source        Source
	IntentID      string
	CheckInAt     *time.Time
	CheckOutAt    *time.Time
	WorkedSeconds int64
}

// Clock is the presented clock state.
type Clock struct {
	Status        ClockStatus
	PendingIntent IntentKind
	CheckInAt     *time.Time
	CheckOutAt    *time.Time
	WorkedSeconds int64
	Source        Source
}
