package handler

import (
	"net/http"

	"github.com/BlowhardChen/diyue-geoengine/internal/adapter/http/handler/dto"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

type Device struct {
	service DeviceService
	l       logger.Logger
}

func NewDevice(service DeviceService, l logger.Logger) *Device {
	return &Device{
		service: service,
		l:       l,
	}
}

// GetState godoc
// @Summary      Engine state
// @Description  Returns the arbiter mode, last known location, RTK channel state and latest heading
// @Tags         Device
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /api/v1/state [get]
func (h *Device) GetState(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_state")

	st := h.service.State(ctx)

	if err := writeJSON(w, http.StatusOK, envelope{"state": st}); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}
}

// SetLink godoc
// @Summary      Report device link state
// @Description  Updates whether the paired receiver is unlinked, online or offline
// @Tags         Device
// @Accept       json
// @Produce      json
// @Param        request  body      dto.LinkStateReq  true  "Link state"
// @Success      200      {object}  map[string]any
// @Failure      400      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Failure      503      {object}  map[string]any
// @Router       /api/v1/device/link [put]
func (h *Device) SetLink(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "set_link_state")

	var req dto.LinkStateReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Warn(ctx, "failed to read request JSON data", "error", err.Error())
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		h.l.Warn(ctx, "invalid link state request", "errors", errs)
		failedValidationResponse(w, errs)
		return
	}

	if err := h.service.SetLinkState(ctx, req.ToModel()); err != nil {
		h.l.Error(ctx, "failed to set link state", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"state": req.State}); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "device link state updated", "state", req.State)
}

// SetPermission godoc
// @Summary      Report location permission
// @Description  Tells the engine whether the host granted location permission
// @Tags         Device
// @Accept       json
// @Produce      json
// @Param        request  body      dto.PermissionReq  true  "Permission"
// @Success      200      {object}  map[string]any
// @Failure      400      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Router       /api/v1/device/permission [put]
func (h *Device) SetPermission(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "set_permission")

	var req dto.PermissionReq
	if err := readJSON(w, r, &req); err != nil {
		h.l.Warn(ctx, "failed to read request JSON data", "error", err.Error())
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		failedValidationResponse(w, errs)
		return
	}

	if err := h.service.SetPermission(ctx, *req.Granted); err != nil {
		h.l.Error(ctx, "failed to set permission", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"granted": *req.Granted}); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "location permission updated", "granted", *req.Granted)
}

// SetLifecycle godoc
// @Summary      Report host lifecycle
// @Description  Foreground resumes the RTK channel, background suspends its reconnects
// @Tags         Device
// @Accept       json
// @Produce      json
// @Param        request  body      dto.LifecycleReq  true  "Lifecycle"
// @Success      200      {object}  map[string]any
// @Failure      400      {object}  map[string]any
// @Failure      422      {object}  map[string]any
// @Router       /api/v1/lifecycle [put]
func (h *Device) SetLifecycle(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "set_lifecycle")

	var req dto.LifecycleReq
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if errs := dto.Validate(req); errs != nil {
		failedValidationResponse(w, errs)
		return
	}

	h.service.SetForeground(ctx, *req.Foreground)

	if err := writeJSON(w, http.StatusOK, envelope{"foreground": *req.Foreground}); err != nil {
		h.l.Error(ctx, "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
