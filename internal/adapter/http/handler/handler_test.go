package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

type fakeDevice struct {
	link       types.DeviceLinkState
	linkErr    error
	permission *bool
	foreground *bool
}

func (d *fakeDevice) State(context.Context) models.EngineState {
	return models.EngineState{
		Arbiter: models.ArbiterSnapshot{Mode: types.ModeGPSOnly, LinkState: d.link},
	}
}

func (d *fakeDevice) SetLinkState(_ context.Context, s types.DeviceLinkState) error {
	if d.linkErr != nil {
		return d.linkErr
	}
	d.link = s
	return nil
}

func (d *fakeDevice) SetPermission(_ context.Context, granted bool) error {
	d.permission = &granted
	return nil
}

func (d *fakeDevice) SetForeground(_ context.Context, fg bool) { d.foreground = &fg }

type fakeMap struct {
	delivered bool
	layer     types.LayerType
	center    models.Coordinate
	commands  []types.MessageType
	tracks    map[uuid.UUID][]models.Coordinate
	ring      []models.Coordinate
}

func newFakeMap() *fakeMap {
	return &fakeMap{delivered: true, tracks: make(map[uuid.UUID][]models.Coordinate)}
}

func (m *fakeMap) SetLayer(_ context.Context, layer types.LayerType, _ string) (bool, error) {
	m.layer = layer
	return m.delivered, nil
}

func (m *fakeMap) Center(_ context.Context, c models.Coordinate) (bool, error) {
	m.center = c
	return m.delivered, nil
}

func (m *fakeMap) SendCommand(_ context.Context, t types.MessageType, _ json.RawMessage) (bool, error) {
	if !types.IsDrawingCommand(t) {
		return false, fmt.Errorf("%q: %w", t, types.ErrUnknownCommand)
	}
	m.commands = append(m.commands, t)
	return m.delivered, nil
}

func (m *fakeMap) AppendTrackPoint(_ context.Context, owner uuid.UUID, color string, c models.Coordinate) (models.TrackSegment, bool) {
	m.tracks[owner] = append(m.tracks[owner], c)
	return models.TrackSegment{OwnerID: owner, Color: color, Points: m.tracks[owner]}, true
}

func (m *fakeMap) Track(_ context.Context, owner uuid.UUID) (models.TrackSegment, error) {
	pts, ok := m.tracks[owner]
	if !ok {
		return models.TrackSegment{}, types.ErrNotFound
	}
	return models.TrackSegment{OwnerID: owner, Points: pts}, nil
}

func (m *fakeMap) ClearTrack(_ context.Context, owner uuid.UUID) error {
	if _, ok := m.tracks[owner]; !ok {
		return types.ErrNotFound
	}
	delete(m.tracks, owner)
	return nil
}

func (m *fakeMap) ClearTracks(context.Context) { clear(m.tracks) }

func (m *fakeMap) Enclosure(context.Context) models.PolygonRecord {
	return models.PolygonRecord{Ring: m.ring}
}

func (m *fakeMap) AddVertex(_ context.Context, c models.Coordinate) models.PolygonRecord {
	m.ring = append(m.ring, c)
	return models.PolygonRecord{Ring: m.ring}
}

func (m *fakeMap) MoveVertex(_ context.Context, i int, c models.Coordinate) (models.PolygonRecord, error) {
	if i >= len(m.ring) {
		return models.PolygonRecord{Ring: m.ring}, types.ErrNotFound
	}
	m.ring[i] = c
	return models.PolygonRecord{Ring: m.ring}, nil
}

func (m *fakeMap) RemoveVertex(_ context.Context, i int) (models.PolygonRecord, error) {
	if i >= len(m.ring) {
		return models.PolygonRecord{Ring: m.ring}, types.ErrNotFound
	}
	m.ring = append(m.ring[:i], m.ring[i+1:]...)
	return models.PolygonRecord{Ring: m.ring}, nil
}

func (m *fakeMap) ClearEnclosure(context.Context) models.PolygonRecord {
	m.ring = nil
	return models.PolygonRecord{}
}

func newMux(dev DeviceService, mp MapService) *http.ServeMux {
	d := NewDevice(dev, logger.Nop())
	m := NewMap(mp, logger.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/state", d.GetState)
	mux.HandleFunc("PUT /api/v1/device/link", d.SetLink)
	mux.HandleFunc("PUT /api/v1/device/permission", d.SetPermission)
	mux.HandleFunc("PUT /api/v1/lifecycle", d.SetLifecycle)
	mux.HandleFunc("PUT /api/v1/map/layer", m.SetLayer)
	mux.HandleFunc("PUT /api/v1/map/center", m.Center)
	mux.HandleFunc("POST /api/v1/map/commands", m.SendCommand)
	mux.HandleFunc("POST /api/v1/tracks/{owner_id}/points", m.AppendTrackPoint)
	mux.HandleFunc("GET /api/v1/tracks/{owner_id}", m.GetTrack)
	mux.HandleFunc("DELETE /api/v1/tracks/{owner_id}", m.ClearTrack)
	mux.HandleFunc("GET /api/v1/enclosure", m.GetEnclosure)
	mux.HandleFunc("POST /api/v1/enclosure/vertices", m.AddVertex)
	mux.HandleFunc("PUT /api/v1/enclosure/vertices/{index}", m.MoveVertex)
	mux.HandleFunc("DELETE /api/v1/enclosure/vertices/{index}", m.RemoveVertex)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestDeviceRoutes(t *testing.T) {
	dev := &fakeDevice{link: types.LinkUnlinked}
	mux := newMux(dev, newFakeMap())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"link online", http.MethodPut, "/api/v1/device/link", `{"state":"ONLINE"}`, http.StatusOK},
		{"link unknown state", http.MethodPut, "/api/v1/device/link", `{"state":"SLEEPING"}`, http.StatusUnprocessableEntity},
		{"link unknown field", http.MethodPut, "/api/v1/device/link", `{"status":"ONLINE"}`, http.StatusBadRequest},
		{"permission missing", http.MethodPut, "/api/v1/device/permission", `{}`, http.StatusUnprocessableEntity},
		{"permission denied", http.MethodPut, "/api/v1/device/permission", `{"granted":false}`, http.StatusOK},
		{"lifecycle background", http.MethodPut, "/api/v1/lifecycle", `{"foreground":false}`, http.StatusOK},
		{"lifecycle empty body", http.MethodPut, "/api/v1/lifecycle", ``, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, mux, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
		})
	}

	assert.Equal(t, types.LinkOnline, dev.link)
	require.NotNil(t, dev.permission)
	assert.False(t, *dev.permission)
	require.NotNil(t, dev.foreground)
	assert.False(t, *dev.foreground)

	status, body := do(t, mux, http.MethodGet, "/api/v1/state", "")
	assert.Equal(t, http.StatusOK, status)
	state := body["state"].(map[string]any)
	assert.Equal(t, string(types.LinkOnline), state["arbiter"].(map[string]any)["linkState"])
}

func TestSetLinkServiceError(t *testing.T) {
	mux := newMux(&fakeDevice{linkErr: types.ErrArbiterStopped}, newFakeMap())

	status, body := do(t, mux, http.MethodPut, "/api/v1/device/link", `{"state":"OFFLINE"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body["error"], types.ErrArbiterStopped.Error())
}

func TestMapCommands(t *testing.T) {
	mp := newFakeMap()
	mux := newMux(&fakeDevice{}, mp)

	status, body := do(t, mux, http.MethodPut, "/api/v1/map/layer", `{"layerType":"custom"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body["error"], "customUrl")

	mp.delivered = false
	status, body = do(t, mux, http.MethodPut, "/api/v1/map/layer", `{"layerType":"satellite"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["delivered"])
	assert.Equal(t, types.LayerSatellite, mp.layer)

	status, _ = do(t, mux, http.MethodPut, "/api/v1/map/center", `{"lon":200,"lat":10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = do(t, mux, http.MethodPut, "/api/v1/map/center", `{"lon":0,"lat":0}`)
	assert.Equal(t, http.StatusOK, status, "zero is a valid coordinate")

	status, _ = do(t, mux, http.MethodPost, "/api/v1/map/commands", `{"type":"CLEAR_MAP"}`)
	assert.Equal(t, http.StatusAccepted, status)

	status, _ = do(t, mux, http.MethodPost, "/api/v1/map/commands", `{"type":"SET_ICON_LOCATION"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []types.MessageType{types.MsgClearMap}, mp.commands)
}

func TestTrackRoutes(t *testing.T) {
	mp := newFakeMap()
	mux := newMux(&fakeDevice{}, mp)
	owner := uuid.New()
	path := "/api/v1/tracks/" + owner.String()

	status, _ := do(t, mux, http.MethodPost, "/api/v1/tracks/not-a-uuid/points", `{"lon":1,"lat":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, mux, http.MethodPost, path+"/points", `{"lon":116.3,"lat":39.9,"color":"#ff0000"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["appended"])
	assert.EqualValues(t, 1, body["points"])

	status, _ = do(t, mux, http.MethodGet, path, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, mux, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, mux, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEnclosureRoutes(t *testing.T) {
	mp := newFakeMap()
	mux := newMux(&fakeDevice{}, mp)

	status, _ := do(t, mux, http.MethodPost, "/api/v1/enclosure/vertices", `{"lon":1,"lat":1}`)
	assert.Equal(t, http.StatusCreated, status)

	status, _ = do(t, mux, http.MethodPut, "/api/v1/enclosure/vertices/0", `{"lon":2,"lat":2}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.Coordinate{Lon: 2, Lat: 2}, mp.ring[0])

	status, _ = do(t, mux, http.MethodPut, "/api/v1/enclosure/vertices/-1", `{"lon":2,"lat":2}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, mux, http.MethodDelete, "/api/v1/enclosure/vertices/5", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, mux, http.MethodDelete, "/api/v1/enclosure/vertices/0", "")
	assert.Equal(t, http.StatusOK, status)

	status, body := do(t, mux, http.MethodGet, "/api/v1/enclosure", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["enclosure"].(map[string]any)["ring"])
}

func TestHealthCheck(t *testing.T) {
	h := NewHealth("geoengine", logger.Nop())

	status, body := do(t, http.HandlerFunc(h.HealthCheck), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "available", body["status"])
}
