package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bitesync/internal/event"
	"bitesync/internal/registry"
)

// ErrNotConnected is returned when a frame cannot be sent because no
// connection is established
var ErrNotConnected = errors.New("stream not connected")

// Conn is the subset of *websocket.Conn the client uses. Tests substitute a
// fake; production code always gets a gorilla connection from the dialer.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a stream connection to the given URL
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Fallback keeps subscribers supplied with events after the connection cannot
// be kept alive. Started on entering degraded mode, stopped on explicit
// restart or shutdown.
type Fallback interface {
	Start()
	Stop()
}

// Config holds the stream client settings
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	InitialRetryDelay time.Duration
	MaxRetryAttempts  int
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
}

// Stats is a snapshot of the client's counters
type Stats struct {
	FramesReceived int64
	DroppedFrames  int64
	Reconnects     int64
}

// Client owns the single stream connection: connect, heartbeat, detect
// closure, reconnect with exponential backoff, and degrade to the fallback
// poller when attempts are exhausted. It implements registry.Announcer so
// subscriptions are declared upstream over the same connection.
type Client struct {
	cfg      Config
	registry *registry.Registry
	dispatch func(event.Event)
	fallback Fallback
	logger   zerolog.Logger

	conn    Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	state atomic.Int32
	// running is true while the run goroutine owns the connection lifecycle
	running atomic.Bool
	// attempts counts consecutive failed dials; owned by Start and the run
	// goroutine, which never overlap while a connection attempt is in flight
	attempts int
	startMu  sync.Mutex

	framesReceived atomic.Int64
	droppedFrames  atomic.Int64
	reconnects     atomic.Int64

	// injectable for deterministic tests
	dial  DialFunc
	after func(d time.Duration) <-chan time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stream client. Events parsed from inbound frames are handed to
// dispatch; fallback may be nil when degraded mode is not wanted.
func New(cfg Config, reg *registry.Registry, dispatch func(event.Event), fallback Fallback, logger zerolog.Logger) *Client {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.InitialRetryDelay == 0 {
		cfg.InitialRetryDelay = time.Second
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = 5
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		registry: reg,
		dispatch: dispatch,
		fallback: fallback,
		logger:   logger.With().Str("component", "stream").Logger(),
		dial:     defaultDial,
		after:    time.After,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func defaultDial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect stream: %w", err)
	}
	return conn, nil
}

// Start opens the stream connection. It is idempotent while connecting or
// connected, and is the explicit recovery path out of degraded mode. On a
// failed first dial the reconnect loop keeps trying in the background; the
// error is returned for the caller's information only.
func (c *Client) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.running.Load() {
		// the run goroutine is already connected or driving reconnection
		return nil
	}
	switch c.State() {
	case StateConnecting, StateConnected:
		return nil
	case StateDegraded:
		c.logger.Info().Msg("explicit restart from degraded mode")
		if c.fallback != nil {
			c.fallback.Stop()
		}
		c.attempts = 0
	}

	c.setState(StateConnecting)
	c.logger.Info().Str("url", c.cfg.URL).Msg("stream connecting")

	conn, err := c.dialOnce(ctx)
	if err != nil {
		c.attempts++
		c.setState(StateDisconnected)
		c.logger.Warn().Err(err).Msg("stream connect failed, retrying in background")
		c.running.Store(true)
		c.wg.Add(1)
		go c.run()
		return err
	}

	c.becomeConnected(conn)
	c.running.Store(true)
	c.wg.Add(1)
	go c.run()
	return nil
}

// State returns the current connection state
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected returns true only while the stream connection is live
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Stats returns a snapshot of the client's counters
func (c *Client) Stats() Stats {
	return Stats{
		FramesReceived: c.framesReceived.Load(),
		DroppedFrames:  c.droppedFrames.Load(),
		Reconnects:     c.reconnects.Load(),
	}
}

// Close tears the client down: connection, heartbeat, reconnect loop, and
// fallback poller. Full shutdown, not suspend.
func (c *Client) Close() {
	c.logger.Info().Msg("stream closing")
	c.cancel()
	if c.fallback != nil {
		c.fallback.Stop()
	}
	c.registry.Detach()
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.setState(StateDisconnected)
	c.wg.Wait()
	c.logger.Info().Msg("stream closed")
}

// Announce implements registry.Announcer
func (c *Client) Announce(sub *registry.Subscription) error {
	return c.writeAnnouncement(event.NewSubscribeAnnouncement(sub.ID, sub.Scope, sub.KindList()))
}

// Withdraw implements registry.Announcer
func (c *Client) Withdraw(sub *registry.Subscription) error {
	return c.writeAnnouncement(event.NewUnsubscribeAnnouncement(sub.ID, sub.Scope, sub.KindList()))
}

func (c *Client) writeAnnouncement(a *event.Announcement) error {
	data, err := a.Bytes()
	if err != nil {
		return fmt.Errorf("failed to marshal announcement: %w", err)
	}
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send announcement: %w", err)
	}
	return nil
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Client) current() Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Client) dialOnce(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()
	return c.dial(dialCtx, c.cfg.URL)
}

// becomeConnected installs the connection, resets the retry counter, and
// re-announces every active subscription before the read loop consumes a
// single frame, so there are no silent delivery gaps across a reconnect.
func (c *Client) becomeConnected(conn Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.attempts = 0
	c.setState(StateConnected)
	c.logger.Info().Msg("stream connected")

	c.registry.Attach(c)

	c.wg.Add(1)
	go c.heartbeatLoop(conn)
}

func (c *Client) run() {
	defer c.wg.Done()
	defer c.running.Store(false)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn := c.current()
		if conn == nil {
			// first dial failed in Start; enter the retry loop directly
			if !c.reconnect() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			c.logger.Warn().Err(err).Msg("stream connection lost")
			c.dropConn()
			if !c.reconnect() {
				return
			}
			continue
		}

		c.framesReceived.Add(1)
		c.handleFrame(data)
	}
}

// handleFrame parses an inbound frame and dispatches it. A malformed frame is
// logged and dropped; it never closes the connection.
func (c *Client) handleFrame(data []byte) {
	ev, err := event.ParseFrame(data)
	if err != nil {
		c.droppedFrames.Add(1)
		c.logger.Warn().Err(err).Int("len", len(data)).Msg("dropping malformed frame")
		return
	}
	c.dispatch(ev)
}

func (c *Client) dropConn() {
	c.registry.Detach()
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.setState(StateDisconnected)
}

// reconnect retries the dial with exponential backoff until success or the
// attempt budget is spent. Returns false when the client should stop reading:
// shutdown, or degraded mode entered.
func (c *Client) reconnect() bool {
	for c.attempts < c.cfg.MaxRetryAttempts {
		delay := c.cfg.InitialRetryDelay << c.attempts
		c.attempts++
		c.logger.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("stream reconnect scheduled")

		select {
		case <-c.ctx.Done():
			return false
		case <-c.after(delay):
		}

		c.setState(StateConnecting)
		conn, err := c.dialOnce(c.ctx)
		if err != nil {
			c.setState(StateDisconnected)
			c.logger.Warn().Err(err).Int("attempt", c.attempts).Msg("stream reconnect failed")
			continue
		}

		c.reconnects.Add(1)
		c.becomeConnected(conn)
		return true
	}

	c.giveUp()
	return false
}

// giveUp transitions to degraded mode and hands delivery over to the fallback
// poller. There is no automatic return to connecting from here; thrashing is
// avoided by requiring an explicit Start to try again.
func (c *Client) giveUp() {
	select {
	case <-c.ctx.Done():
		// shutting down, not degrading
		return
	default:
	}
	c.setState(StateDegraded)
	c.logger.Warn().Int("attempts", c.cfg.MaxRetryAttempts).Msg("reconnect attempts exhausted, entering degraded mode")
	if c.fallback != nil {
		c.fallback.Start()
	}
}

// heartbeatLoop sends a keep-alive frame at a fixed interval while its
// connection is current. A missing server response is not treated as failure;
// liveness detection relies on transport close/error and the read deadline.
func (c *Client) heartbeatLoop(conn Conn) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.after(c.cfg.HeartbeatInterval):
		}

		if c.current() != conn {
			return
		}
		if err := c.writeAnnouncement(event.NewHeartbeat()); err != nil {
			c.logger.Debug().Err(err).Msg("heartbeat write failed")
			return
		}
	}
}
