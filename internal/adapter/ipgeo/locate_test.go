package ipgeo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
)

func server(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLocateSuccess(t *testing.T) {
	srv := server(t, http.StatusOK, `{"status":"success","country":"China","lat":39.9042,"lon":116.4074}`)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	c := New(srv.URL, time.Second, clock.NewMock(now))

	got, err := c.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.LocationSample{
		Coordinate: models.Coordinate{Lon: 116.4074, Lat: 39.9042},
		Source:     types.SourceIP,
		Timestamp:  now,
	}, got)
}

func TestLocateFailures(t *testing.T) {
	cases := map[string]*httptest.Server{
		"status fail": server(t, http.StatusOK, `{"status":"fail","message":"private range"}`),
		"http error":  server(t, http.StatusTooManyRequests, `{}`),
		"bad json":    server(t, http.StatusOK, `{"status":`),
	}
	for name, srv := range cases {
		t.Run(name, func(t *testing.T) {
			c := New(srv.URL, time.Second, clock.Real{})
			_, err := c.Locate(context.Background())
			assert.ErrorIs(t, err, types.ErrLookupFailed)
		})
	}
}

func TestLocateUnreachable(t *testing.T) {
	srv := server(t, http.StatusOK, `{}`)
	srv.Close()

	_, err := New(srv.URL, time.Second, clock.Real{}).Locate(context.Background())
	assert.ErrorIs(t, err, types.ErrLookupFailed)
}
