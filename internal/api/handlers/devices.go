package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
)

// DeviceStore reads devices and their history.
type DeviceStore interface {
	ListDevices(ctx context.Context, filter db.DeviceFilter) ([]*db.Device, error)
	DeviceHistory(ctx context.Context, deviceID int64) ([]*db.HistoryEntry, error)
}

// DevicesResponse is the body of GET /api/devices/.
type DevicesResponse struct {
	Devices []DeviceView `json:"devices"`
}

// HistoryResponse is the body of GET /api/history/{deviceId}/.
type HistoryResponse struct {
	History []HistoryView `json:"history"`
}

// DeviceHandler serves the device list and per-device history.
type DeviceHandler struct {
	store  DeviceStore
	logger *logging.Logger
}

// NewDeviceHandler creates a new device handler.
func NewDeviceHandler(store DeviceStore, logger *logging.Logger) *DeviceHandler {
	return &DeviceHandler{
		store:  store,
		logger: logger.WithComponent("api.devices"),
	}
}

// ListDevices returns every known device ascending by IP.
//
//	@Summary	List devices
//	@Tags		devices
//	@Produce	json
//	@Param		active	query		bool	false	"Only devices seen by their latest sweep"
//	@Param		network	query		string	false	"Only devices inside this CIDR"
//	@Success	200		{object}	DevicesResponse
//	@Failure	400		{object}	StatusResponse
//	@Failure	500		{object}	StatusResponse
//	@Router		/devices/ [get]
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDeviceFilter(r)
	if err != nil {
		writeStatusError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	devices, err := h.store.ListDevices(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list devices", "request_id", middleware.GetRequestID(r), "error", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, DevicesResponse{Devices: NewDeviceViews(devices)})
}

func parseDeviceFilter(r *http.Request) (db.DeviceFilter, error) {
	var filter db.DeviceFilter
	q := r.URL.Query()

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.NewScanError(errors.CodeValidation, "active must be a boolean")
		}
		filter.ActiveOnly = active
	}
	if v := q.Get("network"); v != "" {
		if _, _, err := net.ParseCIDR(v); err != nil {
			return filter, errors.NewScanError(errors.CodeValidation, "network must be a CIDR")
		}
		filter.Network = v
	}
	return filter, nil
}

// History returns a device's sweep history, oldest first. An unknown or
// malformed id yields an empty history.
//
//	@Summary	Device history
//	@Tags		devices
//	@Produce	json
//	@Param		deviceId	path		string	true	"Device ID"
//	@Success	200			{object}	HistoryResponse
//	@Failure	500			{object}	StatusResponse
//	@Router		/history/{deviceId}/ [get]
func (h *DeviceHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["deviceId"], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusOK, HistoryResponse{History: []HistoryView{}})
		return
	}

	entries, err := h.store.DeviceHistory(r.Context(), id)
	if err != nil {
		if errors.IsNotFound(err) {
			writeJSON(w, r, http.StatusOK, HistoryResponse{History: []HistoryView{}})
			return
		}
		h.logger.Error("Failed to load device history",
			"request_id", middleware.GetRequestID(r), "device_id", id, "error", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, HistoryResponse{History: NewHistoryViews(entries)})
}
