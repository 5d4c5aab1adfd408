package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

// pair returns a server-side Conn and the client end of the same socket.
func pair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-accepted:
		return NewConn(context.Background(), conn), client
	case <-time.After(time.Second):
		t.Fatal("server did not accept")
		return nil, nil
	}
}

func TestHubAddDeleteBroadcast(t *testing.T) {
	h := NewConnHub(logger.Nop())
	assert.ErrorIs(t, h.Broadcast([]byte("x")), ErrNoClients)

	_, err := h.Add(nil)
	assert.ErrorIs(t, err, ErrEmptyConn)

	a, clientA := pair(t)
	b, clientB := pair(t)

	n, err := h.Add(a)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = h.Add(a)
	assert.Equal(t, 1, n, "adding the same connection twice keeps one entry")
	n, _ = h.Add(b)
	assert.Equal(t, 2, n)

	require.NoError(t, h.Broadcast([]byte("hello")))
	for _, c := range []*websocket.Conn{clientA, clientB} {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	}

	left, err := h.Delete(a.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, left)
	_, err = h.Delete(a.ID())
	assert.ErrorIs(t, err, ErrConnIsNotFound)

	assert.ErrorIs(t, a.Send([]byte("late")), ErrConnClosed)
}

func TestHubCloseClosesEveryConnection(t *testing.T) {
	h := NewConnHub(logger.Nop())
	a, _ := pair(t)
	b, _ := pair(t)
	_, _ = h.Add(a)
	_, _ = h.Add(b)

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub close blocked")
	}

	assert.Equal(t, 0, h.Len())
	for _, c := range []*Conn{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatal("connection left open")
		}
	}
}

func TestListenStopsOnClose(t *testing.T) {
	c, client := pair(t)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Listen(func([]byte) error { return nil }) }()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(time.Second):
		t.Fatal("listen did not return")
	}
}
