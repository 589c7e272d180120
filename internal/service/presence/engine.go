package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/origin"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/realtime"
)

const DefaultTickInterval = time.Second

// Channel is the realtime connection the engine drives.
type Channel interface {
	On(event string, fn realtime.HandlerFunc)
	OnStateChange(fn func(realtime.ConnectionState))
	Connect(ctx context.Context) error
	Emit(event string, payload interface{}) error
	Close() error
}

type EngineConfig struct {
	UserID         string
	ConfirmSamples int
	TickInterval   time.Duration
	Sampler        SamplerConfig
	Now            func() time.Time
	Logger         *slog.Logger
}

// Status is the presented state of a session.
type Status struct {
	State       presence.State
	Clock       presence.Clock
	Snapshot    *presence.Snapshot
	SensorValid bool
	Connection  realtime.ConnectionState
	Origin      *presence.Origin
	Outstanding int
}

// Engine runs one tracked session. Sensor samples, realtime events and the
// worked-time tick are all handled on a single loop goroutine, so the machine
// and the ledger are never mutated concurrently.
type Engine struct {
	cfg     EngineConfig
	logger  *slog.Logger
	sampler *Sampler
	machine *Machine
	ledger  *Ledger
	channel Channel

	// loop-owned
	origin      *presence.Origin
	snapshot    *presence.Snapshot
	sensorValid bool
	connection  realtime.ConnectionState
	ticking     bool

	inbox    chan func()
	quit     chan struct{}
	loopDone chan struct{}
	started  atomic.Bool

	// conn numbers the channel's connections; it moves on whenever one is lost.
	conn atomic.Uint64

	notify     chan struct{}
	notifyDone chan struct{}
	notifying  atomic.Bool
	updates    []Status

	startOnce sync.Once
	closeOnce sync.Once

	mu        sync.RWMutex
	status    Status
	observers []func(Status)
}

func NewEngine(location presence.LocationSource, orientation presence.OrientationSource, channel Channel, cfg EngineConfig) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sampler.Now == nil {
		cfg.Sampler.Now = cfg.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Sampler.Logger = logger

	e := &Engine{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "presence"), slog.String("user_id", cfg.UserID)),
		sampler:    NewSampler(location, orientation, cfg.Sampler),
		machine:    NewMachine(MachineConfig{UserID: cfg.UserID, ConfirmSamples: cfg.ConfirmSamples}),
		ledger:     NewLedger(),
		channel:    channel,
		ticking:    true,
		inbox:      make(chan func(), 64),
		quit:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		notify:     make(chan struct{}, 1),
		notifyDone: make(chan struct{}),
	}

	// Listeners are registered once for the lifetime of the channel.
	channel.On(attendance.EventCheckInSuccess, e.inbound(func(data json.RawMessage) {
		e.onSuccess(presence.IntentCheckIn, data)
	}))
	channel.On(attendance.EventCheckOutSuccess, e.inbound(func(data json.RawMessage) {
		e.onSuccess(presence.IntentCheckOut, data)
	}))
	channel.On(attendance.EventCheckInError, e.inbound(func(data json.RawMessage) {
		e.onError(presence.IntentCheckIn, data)
	}))
	channel.On(attendance.EventCheckOutError, e.inbound(func(data json.RawMessage) {
		e.onError(presence.IntentCheckOut, data)
	}))
	channel.On(attendance.EventOriginUpdated, e.inbound(e.onOriginUpdated))
	channel.OnStateChange(func(state realtime.ConnectionState) {
		if state == realtime.StateReconnecting || state == realtime.StateDisconnected {
			// Nothing sent on the lost connection will be answered.
			lost := e.conn.Add(1)
			e.post(func() { e.dropUnanswered(lost) })
		}
		e.post(func() {
			e.connection = state
			e.logger.Info("Realtime state changed", "state", state.String())
		})
	})

	e.status = e.buildStatus()
	return e
}

// OnChange registers an observer called, in order, after every state change.
// Observers run on their own goroutine and may call back into the engine.
// Register observers before Start.
func (e *Engine) OnChange(fn func(Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Status returns the latest published status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// SetOrigin replaces the geofence origin. nil means no origin configured.
func (e *Engine) SetOrigin(o *presence.Origin) {
	var copied *presence.Origin
	if o != nil {
		v := *o
		copied = &v
	}
	e.do(func() {
		e.origin = copied
	})
}

// Restore seeds the clock from the server's record for today.
func (e *Engine) Restore(rec attendance.Record) error {
	conf, err := presence.NormalizeResult(attendance.CheckResult{Data: &rec})
	if err != nil {
		return fmt.Errorf("failed to restore attendance: %w", err)
	}

	e.do(func() {
		now := e.cfg.Now()
		entry := presence.LedgerEntry{CheckInAt: conf.CheckInAt, CheckOutAt: conf.CheckOutAt}
		if conf.CheckOutAt == nil {
			entry.WorkedSeconds = int64(now.Sub(*conf.CheckInAt) / time.Second)
			e.machine.Seed(presence.ClockedIn, conf.CheckInAt)
		} else {
			if conf.WorkedSeconds != nil {
				entry.WorkedSeconds = *conf.WorkedSeconds
			}
			e.machine.Seed(presence.ClockedOut, conf.CheckInAt)
		}
		if entry.WorkedSeconds < 0 {
			entry.WorkedSeconds = 0
		}
		e.ledger.Seed(entry)
	})
	return nil
}

// Start runs the loop, connects the channel and subscribes to the sensors.
// A failed connection is not fatal: the channel keeps retrying on its own.
func (e *Engine) Start(ctx context.Context) error {
	var err error
	e.startOnce.Do(func() {
		e.started.Store(true)
		go e.loop()
		go e.notifyLoop()

		if cerr := e.channel.Connect(ctx); cerr != nil {
			e.logger.Warn("Realtime channel not connected at start", "error", cerr)
		}

		err = e.sampler.Start(ctx, func(s presence.Sample) {
			e.post(func() { e.onSample(s) })
		})
	})
	return err
}

// Close ends the session: stop the sensors, stop the ticker, send a best-effort
// check-out if clocked in, then close the channel. Every step runs even if an
// earlier one failed.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.step("stop sensors", e.sampler.Stop)

		e.step("stop ticker", func() {
			e.do(func() { e.ticking = false })
		})

		e.step("final check-out", func() {
			e.do(func() {
				intent := e.machine.Teardown(e.cfg.Now())
				if intent == nil {
					return
				}
				e.dispatch(*intent)
			})
		})

		if e.started.Load() {
			close(e.quit)
			<-e.loopDone
			// An observer closing the engine cannot wait for its own delivery.
			if !e.notifying.Load() {
				<-e.notifyDone
			}
		}

		e.step("close channel", func() {
			if cerr := e.channel.Close(); cerr != nil {
				err = fmt.Errorf("failed to close realtime channel: %w", cerr)
			}
		})
	})
	return err
}

func (e *Engine) loop() {
	defer close(e.loopDone)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-e.inbox:
			fn()
			e.publish()
		case <-ticker.C:
			if !e.ticking {
				continue
			}
			e.ledger.Tick(e.machine.State().ClockStatus)
			e.publish()
		case <-e.quit:
			return
		}
	}
}

// post queues fn on the loop. Events arriving after Close are dropped.
func (e *Engine) post(fn func()) {
	select {
	case <-e.quit:
		return
	default:
	}
	select {
	case e.inbox <- fn:
	case <-e.quit:
	}
}

// do runs fn on the loop and waits for it. Before Start it runs inline.
func (e *Engine) do(fn func()) {
	if !e.started.Load() {
		fn()
		e.publish()
		return
	}

	done := make(chan struct{})
	select {
	case e.inbox <- func() { defer close(done); fn() }:
	case <-e.loopDone:
		return
	}
	select {
	case <-done:
	case <-e.loopDone:
	}
}

func (e *Engine) inbound(fn func(json.RawMessage)) realtime.HandlerFunc {
	return func(data json.RawMessage) {
		e.post(func() { fn(data) })
	}
}

func (e *Engine) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Teardown step failed", "step", name, "panic", r)
		}
	}()
	fn()
}

func (e *Engine) onSample(s presence.Sample) {
	if s.Err != nil {
		e.sensorValid = false
		return
	}
	e.sensorValid = s.Valid

	snap := Evaluate(s, e.origin)
	e.snapshot = &snap

	intent := e.machine.Apply(snap, e.cfg.Now())
	if intent == nil {
		return
	}

	e.logger.Info("Zone transition",
		"intent", intent.Kind.String(),
		"distance_meters", snap.DistanceMeters,
		"valid", snap.Valid(),
	)
	e.dispatch(*intent)
}

// dispatch sends intent and records it in the ledger. An intent that could not
// be sent keeps its optimistic clock value but is not awaited.
func (e *Engine) dispatch(intent presence.Intent) {
	conn, delivered := e.emitIntent(intent)
	e.ledger.Optimistic(intent, conn)
	if !delivered {
		e.ledger.Abandon(intent)
		e.machine.Abandon(intent)
	}
}

// emitIntent never waits for a confirmation. It reports the connection the
// intent went out on.
func (e *Engine) emitIntent(intent presence.Intent) (uint64, bool) {
	event := attendance.EventCheckIn
	if intent.Kind == presence.IntentCheckOut {
		event = attendance.EventCheckOut
	}

	payload := attendance.IntentRequest{
		UserID: intent.UserID,
		Date:   attendance.FormatTime(intent.At),
	}
	conn := e.conn.Load()
	if err := e.channel.Emit(event, payload); err != nil {
		e.logger.Warn("Intent not delivered", "event", event, "intent_id", intent.ID, "error", err)
		return 0, false
	}
	if e.conn.Load() != conn {
		e.logger.Warn("Intent sent while the connection dropped", "event", event, "intent_id", intent.ID)
		return 0, false
	}
	return conn, true
}

func (e *Engine) dropUnanswered(conn uint64) {
	for _, intent := range e.ledger.AbandonBefore(conn) {
		e.machine.Abandon(intent)
		e.logger.Warn("Intent lost with the connection", "intent", intent.Kind.String(), "intent_id", intent.ID)
	}
}

func (e *Engine) onSuccess(kind presence.IntentKind, data json.RawMessage) {
	var payload attendance.SuccessPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		e.logger.Error("Malformed confirmation", "intent", kind.String(), "error", err)
		return
	}

	conf, err := presence.NormalizeResult(payload.Result)
	if err != nil {
		// The intent is still answered; only the timestamps are unknown.
		e.logger.Warn("Confirmation without usable record", "intent", kind.String(), "error", err)
		conf = presence.Confirmation{Message: payload.Result.Message}
	}

	intent, outcome := e.ledger.Confirm(kind, conf)
	switch outcome {
	case OutcomeApplied:
		e.machine.Settle(intent, conf)
		e.logger.Info("Intent confirmed", "intent", kind.String(), "intent_id", intent.ID, "message", conf.Message)
	case OutcomeStale:
		e.logger.Info("Ignoring stale confirmation", "intent", kind.String(), "intent_id", intent.ID)
	default:
		e.logger.Debug("Confirmation without outstanding intent", "intent", kind.String())
	}
}

func (e *Engine) onError(kind presence.IntentKind, data json.RawMessage) {
	var payload attendance.ErrorPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			e.logger.Warn("Malformed intent error", "intent", kind.String(), "error", err)
		}
	}

	intent, outcome := e.ledger.Reject(kind, e.cfg.Now())
	switch outcome {
	case OutcomeApplied:
		e.machine.Revert(intent)
		e.logger.Warn("Intent rejected, clock reverted",
			"intent", kind.String(),
			"intent_id", intent.ID,
			"clock_status", intent.PriorStatus.String(),
			"message", payload.Message,
		)
	case OutcomeStale:
		e.logger.Info("Ignoring stale rejection", "intent", kind.String(), "intent_id", intent.ID)
	default:
		e.logger.Debug("Rejection without outstanding intent", "intent", kind.String())
	}
}

func (e *Engine) onOriginUpdated(data json.RawMessage) {
	var payload origin.OriginResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		e.logger.Error("Malformed origin update", "error", err)
		return
	}
	radius := payload.Radius
	if radius <= 0 {
		radius = presence.DefaultRadiusMeters
	}
	e.origin = &presence.Origin{
		Latitude:     payload.Lat,
		Longitude:    payload.Lng,
		RadiusMeters: radius,
	}
	e.logger.Info("Origin updated", "lat", payload.Lat, "lng", payload.Lng, "radius", radius)
}

func (e *Engine) buildStatus() Status {
	st := e.machine.State()
	cur := e.ledger.Current()

	status := Status{
		State: st,
		Clock: presence.Clock{
			Status:        st.ClockStatus,
			PendingIntent: st.PendingIntent,
			CheckInAt:     cur.CheckInAt,
			CheckOutAt:    cur.CheckOutAt,
			WorkedSeconds: e.ledger.WorkedSeconds(),
			Source:        cur.Source,
		},
		SensorValid: e.sensorValid,
		Connection:  e.connection,
		Outstanding: e.ledger.Outstanding(),
	}
	if e.snapshot != nil {
		snap := *e.snapshot
		status.Snapshot = &snap
	}
	if e.origin != nil {
		o := *e.origin
		status.Origin = &o
	}
	return status
}

func (e *Engine) publish() {
	status := e.buildStatus()

	e.mu.Lock()
	e.status = status
	if len(e.observers) == 0 {
		e.mu.Unlock()
		return
	}
	if !e.started.Load() {
		observers := make([]func(Status), len(e.observers))
		copy(observers, e.observers)
		e.mu.Unlock()
		for _, fn := range observers {
			fn(status)
		}
		return
	}
	e.updates = append(e.updates, status)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// notifyLoop hands published statuses to the observers until the loop has
// stopped and every queued status is delivered.
func (e *Engine) notifyLoop() {
	defer close(e.notifyDone)
	for {
		select {
		case <-e.notify:
			e.deliver()
		case <-e.loopDone:
			e.deliver()
			return
		}
	}
}

func (e *Engine) deliver() {
	for {
		e.mu.Lock()
		if len(e.updates) == 0 {
			e.mu.Unlock()
			return
		}
		status := e.updates[0]
		e.updates = e.updates[1:]
		observers := make([]func(Status), len(e.observers))
		copy(observers, e.observers)
		e.mu.Unlock()

		e.notifying.Store(true)
		for _, fn := range observers {
			fn(status)
		}
		e.notifying.Store(false)
	}
}
