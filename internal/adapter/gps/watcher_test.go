package gps

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

const (
	rmcValid     = "$GPRMC,081836,A,3954.5538,N,11618.0000,E,000.0,360.0,010524,,,A*7C"
	rmcVoid      = "$GPRMC,081837,V,3954.5538,N,11618.0000,E,000.0,360.0,010524,,,N*65"
	ggaFix       = "$GPGGA,081836,3954.5538,N,11618.0000,E,1,08,0.9,545.4,M,46.9,M,,*43"
	rmcSecond    = "$GPRMC,081838,A,3954.6000,N,11618.1200,E,000.0,360.0,010524,,,A*7C"
	badSum       = "$GPRMC,081836,A,3954.5538,N,11618.0000,E,000.0,360.0,010524,,,A*00"
	notASentence = "garbage"
)

func TestParser(t *testing.T) {
	var p Parser

	c, acc, ok := p.Feed(rmcValid + "\r\n")
	require.True(t, ok)
	assert.InDelta(t, 39.90923, c.Lat, 1e-6)
	assert.InDelta(t, 116.3, c.Lon, 1e-6)
	assert.Nil(t, acc)

	_, _, ok = p.Feed(rmcVoid)
	assert.False(t, ok)
	_, _, ok = p.Feed(badSum)
	assert.False(t, ok)
	_, _, ok = p.Feed(notASentence)
	assert.False(t, ok)

	_, _, ok = p.Feed(ggaFix)
	assert.False(t, ok)
	_, acc, ok = p.Feed(rmcSecond)
	require.True(t, ok)
	require.NotNil(t, acc)
	assert.InDelta(t, 4.5, *acc, 1e-9)
}

type pipePort struct {
	*io.PipeReader
	w *io.PipeWriter
}

func (p pipePort) Write(b []byte) (int, error) { return len(b), nil }

func (p pipePort) Close() error {
	_ = p.w.Close()
	return p.PipeReader.Close()
}

func TestWatchStreamsFixes(t *testing.T) {
	r, w := io.Pipe()
	port := pipePort{PipeReader: r, w: w}
	now := time.Date(2024, 5, 1, 8, 18, 36, 0, time.UTC)
	wt := NewWatcher(func() (io.ReadWriteCloser, error) { return port, nil }, clock.NewMock(now), logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	fixes, errs := wt.Watch(ctx)

	go func() {
		_, _ = io.WriteString(w, rmcVoid+"\r\n")
		_, _ = io.WriteString(w, rmcValid+"\r\n")
	}()

	select {
	case s := <-fixes:
		assert.Equal(t, types.SourceGPS, s.Source)
		assert.Equal(t, now, s.Timestamp)
		assert.InDelta(t, 116.3, s.Coordinate.Lon, 1e-6)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no fix")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-fixes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond)
	assert.Empty(t, errs)
}

func TestWatchOpenFailure(t *testing.T) {
	wt := NewWatcher(func() (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}, clock.Real{}, logger.Nop())

	_, errs := wt.Watch(context.Background())
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "no such device")
	case <-time.After(2 * time.Second):
		t.Fatal("expected an error")
	}
}
