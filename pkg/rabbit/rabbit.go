package rabbit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

const (
	heartbeat         = 10 * time.Second
	reconnectAttempts = 5
)

var ErrClosed = errors.New("rabbitmq connection closed")

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool // set by monitor when the broker drops us, or by Close
	stopped bool // set only by Close
	mu      sync.Mutex
	dsn     string

	log logger.Logger
}

// New creates rabbitMQ client
func New(ctx context.Context, dsn string, log logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		dsn: dsn,
		log: log,
	}

	conn, ch, err := dial(dsn)
	if err != nil {
		return nil, err
	}
	r.attach(conn, ch)

	log.Info(wrap.WithAction(ctx, types.ActionRabbitMQConnected), "connected to rabbitMQ")

	return r, nil
}

// NewLazy returns a client that has not dialed yet. The first
// EnsureConnection connects it.
func NewLazy(dsn string, log logger.Logger) *RabbitMQ {
	return &RabbitMQ{dsn: dsn, log: log}
}

func dial(dsn string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(dsn, amqp.Config{
		Heartbeat: heartbeat,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return conn, ch, nil
}

// attach installs a fresh connection and starts watching it. Caller holds mu
// or owns r exclusively.
func (r *RabbitMQ) attach(conn *amqp.Connection, ch *amqp.Channel) {
	connClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClose := ch.NotifyClose(make(chan *amqp.Error, 1))

	r.conn = conn
	r.channel = ch
	r.closed = false

	go r.monitorConnection(conn, connClose, chClose)
}

// monitorConnection marks the client closed when either the connection or the
// channel goes away.
func (r *RabbitMQ) monitorConnection(conn *amqp.Connection, connClose, chClose <-chan *amqp.Error) {
	var (
		closeErr *amqp.Error
		what     string
	)
	select {
	case closeErr = <-connClose:
		what = "connection"
	case closeErr = <-chClose:
		what = "channel"
	}

	r.mu.Lock()
	if r.conn == conn {
		r.closed = true
	}
	r.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), types.ActionRabbitConnectionClosed)
	if closeErr != nil {
		r.log.Error(ctx, "RabbitMQ "+what+" closed with error", closeErr)
	} else {
		r.log.Debug(ctx, "RabbitMQ "+what+" closed gracefully")
	}
}

// IsConnectionClosed checks if the connection is closed
func (r *RabbitMQ) IsConnectionClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isClosedLocked()
}

func (r *RabbitMQ) isClosedLocked() bool {
	return r.closed || r.conn == nil || r.conn.IsClosed() || r.channel == nil || r.channel.IsClosed()
}

// DeclareExchange declares a durable exchange of the given kind.
func (r *RabbitMQ) DeclareExchange(ctx context.Context, name, kind string) error {
	r.mu.Lock()
	ch := r.channel
	r.mu.Unlock()
	if ch == nil {
		return ErrClosed
	}

	if err := ch.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return wrap.Error(ctx, fmt.Errorf("declare exchange %q: %w", name, err))
	}
	return nil
}

// Publish sends one message on the current channel.
func (r *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	r.mu.Lock()
	if r.isClosedLocked() {
		r.mu.Unlock()
		return ErrClosed
	}
	ch := r.channel
	r.mu.Unlock()

	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}

// Close closes rabbit connection
func (r *RabbitMQ) Close(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionRabbitConnectionClosing)

	// mark closed under lock so concurrent Close and Reconnect calls back off
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.closed = true
	ch, conn := r.channel, r.conn
	r.channel, r.conn = nil, nil
	r.mu.Unlock()

	r.log.Debug(ctx, "closing channel")
	if ch != nil {
		if err := closeWithCtxFunc(ctx, ch.Close); err != nil {
			if ctx.Err() != nil {
				r.log.Debug(ctx, "context cancelled while closing channel")
			} else {
				r.log.Error(ctx, "error closing channel", err)
			}
		}
	}

	r.log.Debug(ctx, "closing RabbitMQ connection")
	if conn != nil {
		if err := closeWithCtxFunc(ctx, conn.Close); err != nil {
			if ctx.Err() != nil {
				r.log.Debug(ctx, "context cancelled while closing connection")
				return ctx.Err()
			}
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	r.log.Info(wrap.WithAction(ctx, types.ActionRabbitConnectionClosed), "rabbitMQ closed")
	return nil
}

// helper to close a resource with context cancellation safely
func closeWithCtxFunc(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		// the goroutine still writes into the buffered channel and exits
		return ctx.Err()
	}
}

// Reconnect redials with a linear backoff. It is a no-op while the current
// connection is healthy and an error after Close.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrClosed
	}
	if r.dsn == "" {
		return errors.New("dsn is empty: can't reconnect")
	}
	if !r.isClosedLocked() {
		return nil
	}

	var (
		conn *amqp.Connection
		ch   *amqp.Channel
		err  error
	)
	for i := range reconnectAttempts {
		if conn, ch, err = dial(r.dsn); err == nil {
			break
		}

		wait := time.Duration(i+1) * 2 * time.Second
		r.log.Debug(ctx, "reconnect attempt failed", "attempt", i+1, "retry_in", wait, "error", err)

		select {
		case <-ctx.Done():
			r.log.Debug(ctx, "graceful shutdown, stopping reconnect attempts")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
	}

	r.attach(conn, ch)

	r.log.Info(wrap.WithAction(ctx, types.ActionRabbitReconnected), "RabbitMQ reconnected successfully")
	return nil
}

func (r *RabbitMQ) EnsureConnection(ctx context.Context) error {
	if r.IsConnectionClosed() {
		r.log.Warn(ctx, "rabbit connection closed, reconnecting...")
		if err := r.Reconnect(ctx); err != nil {
			return fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
		}
	}
	return nil
}
