package presence

import (
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
)

// Outcome tells the caller what a confirmation or rejection did to the ledger.
type Outcome int

const (
	// OutcomeApplied: the response belongs to the most recent intent.
	OutcomeApplied Outcome = iota
	// OutcomeStale: the response belongs to an intent a newer one superseded.
	OutcomeStale
	// OutcomeUnsolicited: no outstanding intent of that kind.
	OutcomeUnsolicited
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeStale:
		return "stale"
	default:
		return "unsolicited"
	}
}

type outstanding struct {
	intent         presence.Intent
	workedAtIntent int64
	conn           uint64
}

// Ledger merges optimistic clock values with server confirmations. Responses are
// matched to intents by kind, oldest first; only the response to the newest intent
// may change the presented state.
type Ledger struct {
	confirmed  *presence.LedgerEntry
	optimistic *presence.LedgerEntry
	worked     int64

	pending   map[presence.IntentKind][]outstanding
	latestSeq uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		pending: make(map[presence.IntentKind][]outstanding),
	}
}

// Seed installs a confirmed entry known at session start.
func (l *Ledger) Seed(entry presence.LedgerEntry) {
	entry.Source = presence.SourceConfirmed
	l.confirmed = &entry
	l.optimistic = nil
	l.worked = entry.WorkedSeconds
}

// Optimistic records an intent sent on connection conn and the immediate clock
// value it implies.
func (l *Ledger) Optimistic(intent presence.Intent, conn uint64) {
	l.pending[intent.Kind] = append(l.pending[intent.Kind], outstanding{
		intent:         intent,
		workedAtIntent: l.worked,
		conn:           conn,
	})
	if intent.Seq > l.latestSeq {
		l.latestSeq = intent.Seq
	}

	at := intent.At
	entry := presence.LedgerEntry{
		Source:        presence.SourceOptimistic,
		IntentID:      intent.ID,
		WorkedSeconds: l.worked,
	}
	switch intent.Kind {
	case presence.IntentCheckIn:
		entry.CheckInAt = &at
	case presence.IntentCheckOut:
		entry.CheckInAt = l.Current().CheckInAt
		entry.CheckOutAt = &at
	}
	l.optimistic = &entry
}

// Confirm matches a success response to the oldest outstanding intent of kind.
func (l *Ledger) Confirm(kind presence.IntentKind, conf presence.Confirmation) (presence.Intent, Outcome) {
	rec, ok := l.pop(kind)
	if !ok {
		return presence.Intent{}, OutcomeUnsolicited
	}
	if rec.intent.Seq != l.latestSeq {
		return rec.intent, OutcomeStale
	}

	if conf.WorkedSeconds != nil {
		l.worked = *conf.WorkedSeconds
	}

	entry := presence.LedgerEntry{
		Source:        presence.SourceConfirmed,
		IntentID:      rec.intent.ID,
		CheckInAt:     conf.CheckInAt,
		WorkedSeconds: l.worked,
	}
	if kind == presence.IntentCheckOut {
		entry.CheckOutAt = conf.CheckOutAt
		if entry.CheckOutAt == nil {
			at := rec.intent.At
			entry.CheckOutAt = &at
		}
	}
	l.confirmed = &entry
	l.optimistic = nil
	return rec.intent, OutcomeApplied
}

// Reject matches an error response to the oldest outstanding intent of kind. For
// the newest intent the optimistic entry is dropped and the worked counter is
// restored to what it would have been without the intent.
func (l *Ledger) Reject(kind presence.IntentKind, now time.Time) (presence.Intent, Outcome) {
	rec, ok := l.pop(kind)
	if !ok {
		return presence.Intent{}, OutcomeUnsolicited
	}
	if rec.intent.Seq != l.latestSeq {
		return rec.intent, OutcomeStale
	}

	l.optimistic = nil
	switch kind {
	case presence.IntentCheckIn:
		l.worked = rec.workedAtIntent
	case presence.IntentCheckOut:
		frozen := int64(now.Sub(rec.intent.At) / time.Second)
		if frozen < 0 {
			frozen = 0
		}
		l.worked = rec.workedAtIntent + frozen
	}
	return rec.intent, OutcomeApplied
}

// Abandon forgets an outstanding intent the server will never answer. The
// optimistic entry it produced stays presented.
func (l *Ledger) Abandon(intent presence.Intent) bool {
	recs := l.pending[intent.Kind]
	for i, rec := range recs {
		if rec.intent.Seq != intent.Seq {
			continue
		}
		l.pending[intent.Kind] = append(recs[:i:i], recs[i+1:]...)
		return true
	}
	return false
}

// AbandonBefore forgets every outstanding intent sent on a connection older
// than conn and returns them.
func (l *Ledger) AbandonBefore(conn uint64) []presence.Intent {
	var dropped []presence.Intent
	for kind, recs := range l.pending {
		kept := recs[:0:0]
		for _, rec := range recs {
			if rec.conn < conn {
				dropped = append(dropped, rec.intent)
				continue
			}
			kept = append(kept, rec)
		}
		l.pending[kind] = kept
	}
	return dropped
}

// Tick advances the worked counter by one second while clocked in.
func (l *Ledger) Tick(status presence.ClockStatus) {
	if status != presence.ClockedIn {
		return
	}
	l.worked++
}

// WorkedSeconds is the running worked-time counter.
func (l *Ledger) WorkedSeconds() int64 {
	return l.worked
}

// Current returns the entry to present: the optimistic one while an intent is
// unanswered, otherwise the latest confirmed one.
func (l *Ledger) Current() presence.LedgerEntry {
	if l.optimistic != nil {
		return *l.optimistic
	}
	if l.confirmed != nil {
		return *l.confirmed
	}
	return presence.LedgerEntry{Source: presence.SourceConfirmed}
}

// Confirmed returns the authoritative entry, if any.
func (l *Ledger) Confirmed() *presence.LedgerEntry {
	if l.confirmed == nil {
		return nil
	}
	entry := *l.confirmed
	return &entry
}

// Outstanding counts intents still waiting for a response.
func (l *Ledger) Outstanding() int {
	n := 0
	for _, recs := range l.pending {
		n += len(recs)
	}
	return n
}

func (l *Ledger) pop(kind presence.IntentKind) (outstanding, bool) {
	recs := l.pending[kind]
	if len(recs) == 0 {
		return outstanding{}, false
	}
	rec := recs[0]
	l.pending[kind] = recs[1:]
	return rec, true
}
