package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

var errDial = errors.New("dial refused")

type fakeSocket struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 8), done: make(chan struct{})}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case m := <-s.in:
		return TextMessage, m, nil
	case <-s.done:
		return 0, nil, errors.New("socket closed")
	}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, data)
	return nil
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSocket) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.written...)
}

type fakeDialer struct {
	mu      sync.Mutex
	fail    int // fail this many dials, -1 fails forever
	dials   int
	sockets []*fakeSocket
}

func (d *fakeDialer) Dial(context.Context) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.fail != 0 {
		if d.fail > 0 {
			d.fail--
		}
		return nil, errDial
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[len(d.sockets)-1]
}

type events struct {
	mu       sync.Mutex
	failures []error
	messages [][]byte
}

func (e *events) handlers() Handlers {
	return Handlers{
		OnMessage: func(_ context.Context, data []byte) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.messages = append(e.messages, data)
		},
		OnFailed: func(_ context.Context, err error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.failures = append(e.failures, err)
		},
	}
}

func (e *events) Failures() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.failures...)
}

func (e *events) Messages() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.messages...)
}

func newTestChannel(d *fakeDialer) (*Channel, *clock.Mock, *events) {
	clk := clock.NewMock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	ev := &events{}
	hb := func() []byte { return []byte(`[{"imei":"860000000000001"}]`) }
	return New(Config{}, d, hb, clk, ev.handlers(), logger.Nop()), clk, ev
}

func waitState(t *testing.T, c *Channel, want types.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State().State == want }, 2*time.Second, 5*time.Millisecond)
}

func TestReconnectAttemptsExhausted(t *testing.T) {
	d := &fakeDialer{fail: -1}
	c, clk, ev := newTestChannel(d)

	c.Open(context.Background())
	require.Equal(t, 1, d.Dials())

	for range 10 {
		clk.Advance(DefaultReconnectDelay)
	}

	// initial dial plus five reconnects, never a sixth
	assert.Equal(t, 1+DefaultMaxAttempts, d.Dials())
	require.Len(t, ev.Failures(), 1)
	assert.ErrorIs(t, ev.Failures()[0], types.ErrReconnectExhausted)
	assert.ErrorIs(t, ev.Failures()[0], errDial)
	assert.Zero(t, clk.Pending())

	st := c.State()
	assert.True(t, st.Failed)
	assert.Equal(t, types.ConnClosed, st.State)
	assert.Equal(t, ev.Failures()[0].Error(), st.FailureReason)

	// a fresh Open clears the terminal failure
	c.Open(context.Background())
	st = c.State()
	assert.False(t, st.Failed)
	assert.Empty(t, st.FailureReason)
}

func TestReconnectWaitsForDelay(t *testing.T) {
	d := &fakeDialer{fail: 1}
	c, clk, _ := newTestChannel(d)

	c.Open(context.Background())
	assert.Equal(t, 1, d.Dials())

	clk.Advance(DefaultReconnectDelay - time.Millisecond)
	assert.Equal(t, 1, d.Dials())

	clk.Advance(time.Millisecond)
	assert.Equal(t, 2, d.Dials())
	assert.Equal(t, types.ConnOpen, c.State().State)
	assert.Zero(t, c.State().Attempts)
}

func TestSuccessfulOpenResetsAttempts(t *testing.T) {
	d := &fakeDialer{fail: 4}
	c, clk, ev := newTestChannel(d)

	c.Open(context.Background())
	for range 4 {
		clk.Advance(DefaultReconnectDelay)
	}
	require.Equal(t, types.ConnOpen, c.State().State)
	require.Zero(t, c.State().Attempts)

	// the attempt budget starts over after a successful open
	d.mu.Lock()
	d.fail = 4
	d.mu.Unlock()
	d.Last().Close()
	waitState(t, c, types.ConnClosed)

	for range 5 {
		clk.Advance(DefaultReconnectDelay)
	}
	assert.Empty(t, ev.Failures())
	assert.Equal(t, types.ConnOpen, c.State().State)
}

func TestHeartbeat(t *testing.T) {
	d := &fakeDialer{}
	c, clk, _ := newTestChannel(d)
	c.Open(context.Background())
	sock := d.Last()

	clk.Advance(DefaultHeartbeatInterval - time.Second)
	assert.Empty(t, sock.Written())

	clk.Advance(time.Second)
	clk.Advance(DefaultHeartbeatInterval)
	written := sock.Written()
	require.Len(t, written, 2)
	assert.JSONEq(t, `[{"imei":"860000000000001"}]`, string(written[0]))
}

func TestBackgroundSuspendsAndForegroundReconnects(t *testing.T) {
	d := &fakeDialer{}
	c, clk, _ := newTestChannel(d)
	c.Open(context.Background())
	sock := d.Last()

	c.SetForeground(false)
	clk.Advance(3 * DefaultHeartbeatInterval)
	assert.Empty(t, sock.Written())
	// socket is kept in background
	assert.Equal(t, types.ConnOpen, c.State().State)

	// a drop in background does not schedule a reconnect
	sock.Close()
	waitState(t, c, types.ConnClosed)
	assert.Zero(t, clk.Pending())
	assert.Zero(t, c.State().Attempts)

	c.SetForeground(true)
	assert.Equal(t, 2, d.Dials())
	assert.Equal(t, types.ConnOpen, c.State().State)
}

func TestBackgroundCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{fail: 1}
	c, clk, _ := newTestChannel(d)
	c.Open(context.Background())
	require.Equal(t, 1, clk.Pending())

	c.SetForeground(false)
	assert.Zero(t, clk.Pending())
	clk.Advance(time.Minute)
	assert.Equal(t, 1, d.Dials())
}

func TestForegroundWhileOpenRestartsHeartbeat(t *testing.T) {
	d := &fakeDialer{}
	c, clk, _ := newTestChannel(d)
	c.Open(context.Background())

	c.SetForeground(false)
	c.SetForeground(true)
	assert.Equal(t, 1, d.Dials())

	clk.Advance(DefaultHeartbeatInterval)
	assert.Len(t, d.Last().Written(), 1)
}

func TestCloseIsIdempotentAndStopsReconnects(t *testing.T) {
	d := &fakeDialer{}
	c, clk, _ := newTestChannel(d)
	c.Open(context.Background())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	st := c.State()
	assert.True(t, st.Closed)
	assert.Equal(t, types.ConnClosed, st.State)

	clk.Advance(time.Minute)
	c.SetForeground(false)
	c.SetForeground(true)
	assert.Equal(t, 1, d.Dials())

	c.Open(context.Background())
	assert.Equal(t, 2, d.Dials())
	assert.Equal(t, types.ConnOpen, c.State().State)
}

func TestSendAndReceive(t *testing.T) {
	d := &fakeDialer{}
	c, _, ev := newTestChannel(d)

	assert.ErrorIs(t, c.Send([]byte("x")), types.ErrNotConnected)

	c.Open(context.Background())
	require.NoError(t, c.Send([]byte(`{"ping":1}`)))
	assert.Equal(t, [][]byte{[]byte(`{"ping":1}`)}, d.Last().Written())

	d.Last().in <- []byte(`{"type":"location","data":{"lat":1,"lon":2}}`)
	require.Eventually(t, func() bool { return len(ev.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
}
