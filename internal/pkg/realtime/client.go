package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionState is the client's view of the connection.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
)

// Conn is the subset of *websocket.Conn the client relies on.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// DialFunc opens one connection.
type DialFunc func(ctx context.Context) (Conn, error)

// HandlerFunc handles the data of one inbound event.
type HandlerFunc func(data json.RawMessage)

type ClientConfig struct {
	URL string
	// Token is captured once; reconnects reuse it.
	Token                string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Dial                 DialFunc
	Logger               *slog.Logger
}

// Client is a persistent, reconnecting realtime connection for one session.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	mu            sync.Mutex
	conn          Conn
	state         ConnectionState
	handlers      map[string]HandlerFunc
	stateHandlers []func(ConnectionState)
	attempts      int
	closed        bool

	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dial == nil {
		cfg.Dial = WebsocketDialer(cfg.URL, cfg.Token)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "realtime")),
		handlers: make(map[string]HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WebsocketDialer dials url with the bearer token in the Authorization header.
func WebsocketDialer(url, token string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		header := http.Header{}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return nil, fmt.Errorf("dial %s: %w", url, ErrUnauthorized)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// On registers the handler for an inbound event. A later registration for the
// same event replaces the earlier one, so each event has at most one listener.
func (c *Client) On(event string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.handlers[event] = fn
}

// OnStateChange registers a connection state observer.
func (c *Client) OnStateChange(fn func(ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stateHandlers = append(c.stateHandlers, fn)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempts returns the number of reconnect dials made so far.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect dials the server. On failure the reconnect policy takes over in the
// background and the dial error is returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, err := c.cfg.Dial(ctx)
	if err != nil {
		c.logger.Warn("Realtime connect failed", "error", err)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.reconnect()
		}()
		return err
	}

	c.attach(conn)
	return nil
}

// Emit sends one event. Nothing is queued: when the connection is down the
// event is rejected with ErrNotConnected.
func (c *Client) Emit(event string, payload interface{}) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to emit %s: %w", event, err)
	}
	return nil
}

// Close deregisters every listener, then closes the connection and stops
// the reconnect loop. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = make(map[string]HandlerFunc)
	c.stateHandlers = nil
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	c.cancel()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}

func (c *Client) attach(conn Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	c.logger.Info("Realtime connected")

	c.wg.Add(1)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn Conn) {
	defer c.wg.Done()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			if closed {
				return
			}

			c.logger.Warn("Realtime connection lost", "error", err)
			_ = conn.Close()
			c.reconnect()
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	c.mu.Lock()
	fn := c.handlers[env.Event]
	c.mu.Unlock()

	if fn == nil {
		c.logger.Debug("Realtime event without listener", "event", env.Event)
		return
	}
	fn(env.Data)
}

// reconnect makes up to MaxReconnectAttempts dials, each after ReconnectDelay.
// When they are exhausted the client stays Disconnected.
func (c *Client) reconnect() {
	c.setState(StateReconnecting)

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		c.attempts++
		c.mu.Unlock()

		conn, err := c.cfg.Dial(c.ctx)
		if err == nil {
			c.logger.Info("Realtime reconnected", "attempt", attempt)
			c.attach(conn)
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn("Realtime reconnect failed", "attempt", attempt, "max_attempts", c.cfg.MaxReconnectAttempts, "error", err)
	}

	c.logger.Error("Realtime reconnect attempts exhausted", "max_attempts", c.cfg.MaxReconnectAttempts)
	c.setState(StateDisconnected)
}

func (c *Client) setState(state ConnectionState) {
	c.mu.Lock()
	if c.closed || c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	observers := make([]func(ConnectionState), len(c.stateHandlers))
	copy(observers, c.stateHandlers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
