package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/http/handler/dto"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

type Map struct {
	service MapService
	l       logger.Logger
}

func NewMap(service MapService, l logger.Logger) *Map {
	return &Map{
		service: service,
		l:       l,
	}
}

// SetLayer godoc
// @Summary      Switch basemap layer
// @Description  Stores the basemap preference and pushes it to the surface once ready
// @Tags         Map
// @Accept       json
// @Produce      json
// @Param        request  body      dto.LayerReq  true  "Layer"
// @Success      200      {object}  map[string]any
// @Failure      400      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Router       /api/v1/map/layer [put]
func (h *Map) SetLayer(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "set_layer")

	var req dto.LayerReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Warn(ctx, "failed to read request JSON data", "error", err.Error())
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		failedValidationResponse(w, errs)
		return
	}

	delivered, err := h.service.SetLayer(ctx, req.Layer(), req.CustomURL)
	if err != nil {
		h.l.Error(ctx, "failed to switch layer", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	h.respond(ctx, w, http.StatusOK, envelope{"layerType": req.LayerType, "delivered": delivered})
}

// Center godoc
// @Summary      Center the map
// @Description  Centers the map on a WGS-84 coordinate
// @Tags         Map
// @Accept       json
// @Produce      json
// @Param        request  body      dto.CoordinateReq  true  "Coordinate"
// @Success      200      {object}  map[string]any
// @Failure      400      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Router       /api/v1/map/center [put]
func (h *Map) Center(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "center_map")

	var req dto.CoordinateReq
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		failedValidationResponse(w, errs)
		return
	}

	delivered, err := h.service.Center(ctx, req.ToModel())
	if err != nil {
		h.l.Error(ctx, "failed to center map", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	h.respond(ctx, w, http.StatusOK, envelope{"delivered": delivered})
}

// SendCommand godoc
// @Summary      Relay a drawing command
// @Description  Forwards a drawing command (DOT_MARKER, DRAW_POLYGON, CLEAR_MAP, ...) to the surface
// @Tags         Map
// @Accept       json
// @Produce      json
// @Param        request  body      dto.CommandReq  true  "Command"
// @Success      202      {object}  map[string]any
// @Failure      400      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Failure      503      {object}  map[string]any
// @Router       /api/v1/map/commands [post]
func (h *Map) SendCommand(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "send_command")

	var req dto.CommandReq
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		failedValidationResponse(w, errs)
		return
	}

	delivered, err := h.service.SendCommand(ctx, types.MessageType(req.Type), req.Payload)
	if err != nil {
		h.l.Warn(ctx, "command rejected", "type", req.Type, "error", err.Error())
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	h.respond(ctx, w, http.StatusAccepted, envelope{"type": req.Type, "delivered": delivered})
}

/*===================== Tracks ========================*/

// AppendTrackPoint godoc
// @Summary      Append a track point
// @Description  Extends the operator's trajectory. Points within the jitter threshold are ignored.
// @Tags         Tracks
// @Accept       json
// @Produce      json
// @Param        owner_id  path      string             true  "Track owner"
// @Param        request   body      dto.TrackPointReq  true  "Point"
// @Success      200       {object}  map[string]any
// @Failure      400       {object}  map[string]any
// @Failure      422       {object}  map[string]any
// @Router       /api/v1/tracks/{owner_id}/points [post]
func (h *Map) AppendTrackPoint(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "append_track_point")

	owner, err := uuid.Parse(r.PathValue("owner_id"))
	if err != nil {
		badRequestResponse(w, "invalid owner id")
		return
	}

	var req dto.TrackPointReq
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		failedValidationResponse(w, errs)
		return
	}

	seg, appended := h.service.AppendTrackPoint(ctx, owner, req.Color, req.ToModel())

	h.respond(ctx, w, http.StatusOK, envelope{"appended": appended, "points": len(seg.Points)})
}

// GetTrack godoc
// @Summary      Get a track
// @Tags         Tracks
// @Produce      json
// @Param        owner_id  path      string  true  "Track owner"
// @Success      200       {object}  map[string]any
// @Failure      400       {object}  map[string]any
// @Failure      404       {object}  map[string]any
// @Router       /api/v1/tracks/{owner_id} [get]
func (h *Map) GetTrack(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_track")

	owner, err := uuid.Parse(r.PathValue("owner_id"))
	if err != nil {
		badRequestResponse(w, "invalid owner id")
		return
	}

	seg, err := h.service.Track(ctx, owner)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	h.respond(ctx, w, http.StatusOK, envelope{"track": seg})
}

// ClearTrack godoc
// @Summary      Clear a track
// @Tags         Tracks
// @Param        owner_id  path  string  true  "Track owner"
// @Success      204
// @Failure      400  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Router       /api/v1/tracks/{owner_id} [delete]
func (h *Map) ClearTrack(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "clear_track")

	owner, err := uuid.Parse(r.PathValue("owner_id"))
	if err != nil {
		badRequestResponse(w, "invalid owner id")
		return
	}

	if err := h.service.ClearTrack(ctx, owner); err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.l.Info(ctx, "track cleared", "owner_id", owner)
}

// ClearTracks godoc
// @Summary      Clear every track
// @Tags         Tracks
// @Success      204
// @Router       /api/v1/tracks [delete]
func (h *Map) ClearTracks(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "clear_tracks")

	h.service.ClearTracks(ctx)

	w.WriteHeader(http.StatusNoContent)
	h.l.Info(ctx, "all tracks cleared")
}

/*===================== Enclosure ========================*/

// GetEnclosure godoc
// @Summary      Get the enclosure polygon
// @Description  Returns the ring with its area, edge lengths and perimeter
// @Tags         Enclosure
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/enclosure [get]
func (h *Map) GetEnclosure(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_enclosure")
	h.respond(ctx, w, http.StatusOK, envelope{"enclosure": h.service.Enclosure(ctx)})
}

// AddVertex godoc
// @Summary      Add an enclosure vertex
// @Tags         Enclosure
// @Accept       json
// @Produce      json
// @Param        request  body      dto.CoordinateReq  true  "Vertex"
// @Success      201      {object}  map[string]any
// @Failure      400      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Router       /api/v1/enclosure/vertices [post]
func (h *Map) AddVertex(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "add_vertex")

	var req dto.CoordinateReq
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		failedValidationResponse(w, errs)
		return
	}

	rec := h.service.AddVertex(ctx, req.ToModel())
	h.respond(ctx, w, http.StatusCreated, envelope{"enclosure": rec})
}

// MoveVertex godoc
// @Summary      Move an enclosure vertex
// @Tags         Enclosure
// @Accept       json
// @Produce      json
// @Param        index    path      int                true  "Vertex index"
// @Param        request  body      dto.CoordinateReq  true  "New position"
// @Success      200      {object}  map[string]any
// @Failure      400      {object}  map[string]any
// @Failure      404      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Router       /api/v1/enclosure/vertices/{index} [put]
func (h *Map) MoveVertex(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "move_vertex")

	i, err := vertexIndex(r)
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	var req dto.CoordinateReq
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		failedValidationResponse(w, errs)
		return
	}

	rec, err := h.service.MoveVertex(ctx, i, req.ToModel())
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	h.respond(ctx, w, http.StatusOK, envelope{"enclosure": rec})
}

// RemoveVertex godoc
// @Summary      Remove an enclosure vertex
// @Tags         Enclosure
// @Produce      json
// @Param        index  path      int  true  "Vertex index"
// @Success      200    {object}  map[string]any
// @Failure      400    {object}  map[string]any
// @Failure      404    {object}  map[string]any
// @Router       /api/v1/enclosure/vertices/{index} [delete]
func (h *Map) RemoveVertex(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "remove_vertex")

	i, err := vertexIndex(r)
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	rec, err := h.service.RemoveVertex(ctx, i)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	h.respond(ctx, w, http.StatusOK, envelope{"enclosure": rec})
}

// ClearEnclosure godoc
// @Summary      Clear the enclosure
// @Tags         Enclosure
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/enclosure [delete]
func (h *Map) ClearEnclosure(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "clear_enclosure")
	h.respond(ctx, w, http.StatusOK, envelope{"enclosure": h.service.ClearEnclosure(ctx)})
}

func (h *Map) respond(ctx context.Context, w http.ResponseWriter, status int, data envelope) {
	if err := writeJSON(w, status, data); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

func vertexIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid vertex index %q", r.PathValue("index"))
	}
	return i, nil
}
