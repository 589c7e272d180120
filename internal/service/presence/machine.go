package presence

import (
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
	"github.com/google/uuid"
)

type MachineConfig struct {
	UserID string

	// ConfirmSamples is how many consecutive snapshots must agree on a new
	// membership before the flip is taken. 1 reacts to the first snapshot.
	ConfirmSamples int
}

// Machine is the zone-membership × clock-status state machine. It is not safe
// for concurrent use; the engine drives it from a single goroutine.
type Machine struct {
	cfg   MachineConfig
	state presence.State

	candidate presence.Membership
	streak    int
	seq       uint64
	newID     func() string
}

func NewMachine(cfg MachineConfig) *Machine {
	if cfg.ConfirmSamples <= 0 {
		cfg.ConfirmSamples = 1
	}
	return &Machine{
		cfg:   cfg,
		state: presence.NewState(),
		newID: func() string { return uuid.NewString() },
	}
}

// State returns a copy of the current state.
func (m *Machine) State() presence.State {
	return m.state
}

// Seed sets the clock status known at session start, e.g. an open session
// reported by the server. Membership stays Unknown.
func (m *Machine) Seed(status presence.ClockStatus, checkIn *time.Time) {
	m.state.ClockStatus = status
	m.state.PendingIntent = presence.IntentNone
	if checkIn != nil {
		in := *checkIn
		m.state.LastConfirmedCheckIn = &in
	}
}

// Apply folds one snapshot into the state and returns the intent to emit, if any.
// Snapshots evaluated without an origin carry no membership information and are skipped.
func (m *Machine) Apply(snap presence.Snapshot, now time.Time) *presence.Intent {
	if !snap.OriginKnown {
		return nil
	}

	observed := presence.MembershipOutside
	if snap.InsideZone {
		observed = presence.MembershipInside
	}

	if observed == m.state.Membership {
		m.candidate = presence.MembershipUnknown
		m.streak = 0
		return nil
	}

	if observed != m.candidate {
		m.candidate = observed
		m.streak = 0
	}
	m.streak++
	if m.streak < m.cfg.ConfirmSamples {
		return nil
	}

	previous := m.state.Membership
	m.state.Membership = observed
	m.candidate = presence.MembershipUnknown
	m.streak = 0

	switch {
	case observed == presence.MembershipInside && m.state.ClockStatus == presence.ClockedOut:
		return m.issue(presence.IntentCheckIn, now)
	case observed == presence.MembershipOutside && previous == presence.MembershipInside &&
		m.state.ClockStatus == presence.ClockedIn:
		return m.issue(presence.IntentCheckOut, now)
	}
	return nil
}

// Teardown returns the best-effort check-out for a session ending while clocked in.
func (m *Machine) Teardown(now time.Time) *presence.Intent {
	if m.state.ClockStatus != presence.ClockedIn {
		return nil
	}
	return m.issue(presence.IntentCheckOut, now)
}

// Settle applies the server confirmation of the most recent intent.
func (m *Machine) Settle(intent presence.Intent, conf presence.Confirmation) {
	switch intent.Kind {
	case presence.IntentCheckIn:
		if conf.CheckInAt != nil {
			m.state.LastConfirmedCheckIn = conf.CheckInAt
		}
	case presence.IntentCheckOut:
		if conf.CheckInAt != nil {
			m.state.LastConfirmedCheckIn = conf.CheckInAt
		}
		if conf.CheckOutAt != nil {
			m.state.LastConfirmedCheckOut = conf.CheckOutAt
		} else {
			at := intent.At
			m.state.LastConfirmedCheckOut = &at
		}
	}
	m.state.PendingIntent = presence.IntentNone
}

// Revert undoes the optimistic clock change of a rejected intent.
func (m *Machine) Revert(intent presence.Intent) {
	m.state.ClockStatus = intent.PriorStatus
	m.state.PendingIntent = presence.IntentNone
}

// Abandon clears the pending marker of an intent that will never be answered.
// The optimistic clock status is kept.
func (m *Machine) Abandon(intent presence.Intent) {
	if intent.Seq == m.seq && m.state.PendingIntent == intent.Kind {
		m.state.PendingIntent = presence.IntentNone
	}
}

func (m *Machine) issue(kind presence.IntentKind, now time.Time) *presence.Intent {
	m.seq++
	intent := &presence.Intent{
		ID:          m.newID(),
		Seq:         m.seq,
		Kind:        kind,
		UserID:      m.cfg.UserID,
		At:          now,
		PriorStatus: m.state.ClockStatus,
	}

	m.state.PendingIntent = kind
	if kind == presence.IntentCheckIn {
		m.state.ClockStatus = presence.ClockedIn
	} else {
		m.state.ClockStatus = presence.ClockedOut
	}
	return intent
}
