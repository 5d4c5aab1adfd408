package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	pingWait  = 3 * time.Second
)

var ErrConnClosed = errors.New("connection closed")

// Conn is one accepted websocket peer. Writes are serialised; reads happen
// only inside Listen.
type Conn struct {
	conn    *websocket.Conn
	id      uuid.UUID
	doneCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex // guards writes
	closeOnce sync.Once
	closeErr  error
}

func NewConn(ctx context.Context, conn *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	return &Conn{
		conn:    conn,
		id:      uuid.New(),
		doneCtx: ctx,
		cancel:  cancel,
	}
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Done is closed once the connection has been closed.
func (c *Conn) Done() <-chan struct{} {
	return c.doneCtx.Done()
}

// Health pings the peer.
func (c *Conn) Health() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.alive(); err != nil {
		return err
	}

	if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(pingWait)); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Send writes one text frame.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.alive(); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// alive must be called with mu held.
func (c *Conn) alive() error {
	if c.conn == nil {
		return errors.New("connection is nil")
	}
	select {
	case <-c.doneCtx.Done():
		return ErrConnClosed
	default:
		return nil
	}
}

// Listen reads frames until the peer goes away or the connection is closed.
// A handler error stops listening.
func (c *Conn) Listen(handler func(data []byte) error) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.doneCtx.Done():
				return ErrConnClosed
			default:
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if err := handler(data); err != nil {
			return fmt.Errorf("handler failed: %w", err)
		}
	}
}

// Close is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn == nil {
			return
		}

		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(pingWait))
		c.mu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
