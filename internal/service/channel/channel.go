// Package channel implements a reconnecting, heart-beating socket that
// follows the host's foreground/background lifecycle.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/BlowhardChen/diyue-geoengine/pkg/metrics"
)

const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultReconnectDelay    = 3 * time.Second
	DefaultMaxAttempts       = 5

	// TextMessage matches websocket.TextMessage.
	TextMessage = 1
)

type Config struct {
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	MaxAttempts       int
}

type Status = models.ChannelStatus

// Channel owns the connection state. Every transition happens under mu;
// handlers and socket I/O run outside it.
type Channel struct {
	cfg       Config
	dialer    Dialer
	heartbeat func() []byte
	clock     clock.Clock
	handlers  Handlers
	l         logger.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	state      types.ConnectionState
	attempts   int
	foreground bool
	closed     bool // explicit local close, suppresses reconnects
	failed     bool
	failReason string
	openedAt   time.Time
	gen        uint64 // bumped on every dial and close; stale events are ignored
	sock       Socket
	hbTimer    clock.Timer
	retryTimer clock.Timer
}

// New creates a closed channel in the foreground. heartbeat builds the
// keep-alive frame and may be nil to disable heartbeats.
func New(cfg Config, dialer Dialer, heartbeat func() []byte, clk clock.Clock, h Handlers, l logger.Logger) *Channel {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Channel{
		cfg:        cfg,
		dialer:     dialer,
		heartbeat:  heartbeat,
		clock:      clk,
		handlers:   h,
		l:          l,
		state:      types.ConnClosed,
		foreground: true,
		closed:     true,
		ctx:        context.Background(),
		cancel:     func() {},
	}
}

// Open clears the no-reconnect flag and connects if the host is in the
// foreground. Connection errors are reported through the handlers.
func (c *Channel) Open(ctx context.Context) {
	c.mu.Lock()
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.closed = false
	c.failed = false
	c.failReason = ""
	c.attempts = 0
	connect := c.foreground && c.state == types.ConnClosed
	c.mu.Unlock()

	if connect {
		c.connect()
	}
}

// Close releases the socket, stops all timers and prevents reconnection
// until the next Open. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	c.stopTimersLocked()
	c.cancel()
	sock := c.sock
	c.sock = nil
	ctx := c.ctx
	if sock != nil {
		c.state = types.ConnClosing
	} else {
		c.state = types.ConnClosed
	}
	st := c.statusLocked()
	c.mu.Unlock()

	ctx = wrap.WithAction(ctx, types.ActionRTKClosed)
	c.notifyState(ctx, st)
	if sock == nil {
		return nil
	}

	err := sock.Close()

	c.mu.Lock()
	c.state = types.ConnClosed
	st = c.statusLocked()
	c.mu.Unlock()
	c.notifyState(ctx, st)

	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("close socket: %w", err))
	}
	return nil
}

// SetForeground applies a host lifecycle transition. Going to background
// suspends the heartbeat and any pending reconnect but keeps the socket.
// Coming back reconnects at once unless the channel was closed explicitly.
func (c *Channel) SetForeground(fg bool) {
	c.mu.Lock()
	c.foreground = fg
	ctx := wrap.WithAction(c.ctx, types.ActionLifecycleChanged)

	if !fg {
		c.stopTimersLocked()
		c.mu.Unlock()
		c.l.Debug(ctx, "host moved to background, heartbeat and reconnect suspended")
		return
	}

	switch {
	case c.state == types.ConnOpen:
		c.startHeartbeatLocked()
		c.mu.Unlock()
		return
	case c.closed || c.state == types.ConnConnecting:
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.failed = false
	c.failReason = ""
	c.mu.Unlock()

	c.l.Debug(ctx, "host moved to foreground, reconnecting")
	c.connect()
}

// Send writes one text frame on the open socket.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	sock, state := c.sock, c.state
	c.mu.Unlock()

	if state != types.ConnOpen || sock == nil {
		return types.ErrNotConnected
	}
	return c.write(sock, data)
}

func (c *Channel) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Channel) connect() {
	c.mu.Lock()
	if c.closed || c.failed || c.state == types.ConnConnecting || c.state == types.ConnOpen {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.state = types.ConnConnecting
	ctx := c.ctx
	st := c.statusLocked()
	c.mu.Unlock()

	ctx = wrap.WithAction(ctx, types.ActionRTKDial)
	c.notifyState(ctx, st)

	sock, err := c.dialer.Dial(ctx)
	if err != nil {
		c.l.Warn(ctx, "rtk dial failed", "error", err, "attempt", st.Attempts)
		c.handleClose(gen, err)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.closed {
		// closed while dialing
		c.mu.Unlock()
		_ = sock.Close()
		return
	}
	c.sock = sock
	c.state = types.ConnOpen
	c.attempts = 0
	c.openedAt = c.clock.Now()
	if c.foreground {
		c.startHeartbeatLocked()
	}
	st = c.statusLocked()
	c.mu.Unlock()

	ctx = wrap.WithAction(ctx, types.ActionRTKOpened)
	c.l.Info(ctx, "rtk channel open")
	c.notifyState(ctx, st)

	go c.readLoop(ctx, gen, sock)
}

func (c *Channel) readLoop(ctx context.Context, gen uint64, sock Socket) {
	ctx = wrap.WithAction(ctx, types.ActionRTKFrame)
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		metrics.ChannelFramesTotal.WithLabelValues("in", "received").Inc()
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(ctx, data)
		}
	}
}

// handleClose processes a close event for connection gen: a failed dial or
// a socket that stopped reading.
func (c *Channel) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	sock := c.sock
	c.sock = nil
	c.state = types.ConnClosed
	ctx := wrap.WithAction(c.ctx, types.ActionRTKClosed)

	var (
		schedule bool
		failErr  error
	)
	if !c.closed && c.foreground {
		c.attempts++
		if c.attempts > c.cfg.MaxAttempts {
			failErr = fmt.Errorf("%w after %d attempts: %w", types.ErrReconnectExhausted, c.cfg.MaxAttempts, cause)
			c.failed = true
			c.failReason = failErr.Error()
		} else {
			schedule = true
			retryGen := c.gen
			c.retryTimer = c.clock.AfterFunc(c.cfg.ReconnectDelay, func() { c.retry(retryGen) })
		}
	}
	st := c.statusLocked()
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}

	c.l.Warn(ctx, "rtk channel closed", "error", cause, "attempts", st.Attempts)
	c.notifyState(ctx, st)

	switch {
	case schedule:
		metrics.ChannelReconnectsTotal.Inc()
		c.l.Info(wrap.WithAction(ctx, types.ActionRTKReconnect), "reconnect scheduled",
			"delay", c.cfg.ReconnectDelay.String(), "attempt", st.Attempts)
	case failErr != nil:
		metrics.ChannelFailuresTotal.Inc()
		ctx = wrap.WithAction(ctx, types.ActionRTKFailed)
		c.l.Error(ctx, "rtk connection failed", failErr)
		if c.handlers.OnFailed != nil {
			c.handlers.OnFailed(ctx, failErr)
		}
	}
}

func (c *Channel) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed || !c.foreground {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.mu.Unlock()

	c.connect()
}

func (c *Channel) startHeartbeatLocked() {
	if c.heartbeat == nil {
		return
	}
	if c.hbTimer != nil {
		c.hbTimer.Stop()
	}
	gen := c.gen
	c.hbTimer = c.clock.AfterFunc(c.cfg.HeartbeatInterval, func() { c.beat(gen) })
}

func (c *Channel) beat(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != types.ConnOpen || !c.foreground || c.sock == nil {
		c.mu.Unlock()
		return
	}
	sock := c.sock
	ctx := wrap.WithAction(c.ctx, types.ActionRTKHeartbeat)
	c.startHeartbeatLocked()
	c.mu.Unlock()

	if err := c.write(sock, c.heartbeat()); err != nil {
		c.l.Warn(ctx, "heartbeat write failed", "error", err)
	}
}

func (c *Channel) write(sock Socket, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := sock.WriteMessage(TextMessage, data); err != nil {
		metrics.ChannelFramesTotal.WithLabelValues("out", "error").Inc()
		return fmt.Errorf("write frame: %w", err)
	}
	metrics.ChannelFramesTotal.WithLabelValues("out", "sent").Inc()
	return nil
}

func (c *Channel) stopTimersLocked() {
	if c.hbTimer != nil {
		c.hbTimer.Stop()
		c.hbTimer = nil
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Channel) statusLocked() Status {
	return Status{
		State:      c.state,
		Attempts:   c.attempts,
		Foreground: c.foreground,
		Closed:     c.closed,
		Failed:     c.failed,
		OpenedAt:   c.openedAt,

		FailureReason: c.failReason,
	}
}

func (c *Channel) notifyState(ctx context.Context, st Status) {
	if c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(ctx, st)
	}
}
