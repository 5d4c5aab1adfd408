package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/config"
	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/surface"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/bridge"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/engine"
	"github.com/BlowhardChen/diyue-geoengine/internal/service/geometry"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	ws "github.com/BlowhardChen/diyue-geoengine/pkg/wsHub"
)

type stubArbiter struct{}

func (stubArbiter) SetLinkState(context.Context, types.DeviceLinkState) error { return nil }
func (stubArbiter) SetPermission(context.Context, bool) error                 { return nil }
func (stubArbiter) Snapshot() models.ArbiterSnapshot                          { return models.ArbiterSnapshot{} }

func newTestAPI(t *testing.T) *API {
	t.Helper()
	l := logger.Nop()

	sf := surface.New(ws.NewConnHub(l), l)
	br := bridge.New(bridge.Config{}, sf, bridge.Callbacks{}, l)
	eng := engine.New(stubArbiter{}, nil, nil, br, geometry.NewTrackBook(geometry.TrackConfig{}), geometry.NewEnclosure(), l)

	api, err := New(config.AppConfig{Name: "geoengine", Port: "0"}, eng, eng, sf, br, l)
	require.NoError(t, err)
	return api
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewRequiresServices(t *testing.T) {
	_, err := New(config.AppConfig{Port: "0"}, nil, nil, nil, nil, logger.Nop())
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = get(t, h, "/api/v1/state")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"surfaceReady": false`)

	rec = get(t, h, "/swagger/doc.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/enclosure/vertices/{index}")

	rec = get(t, h, "/api/v1/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsLabelledByPattern(t *testing.T) {
	h := newTestAPI(t).Handler()

	get(t, h, "/api/v1/tracks/"+"00000000-0000-0000-0000-000000000001")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `path="GET /api/v1/tracks/{owner_id}"`), "route pattern label missing")
	assert.NotContains(t, body, "00000000-0000-0000-0000-000000000001")
}

func TestWebSocketRouteRejectsPlainGET(t *testing.T) {
	rec := get(t, newTestAPI(t).Handler(), "/ws/surface")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
