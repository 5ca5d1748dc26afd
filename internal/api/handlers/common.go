// Package handlers provides HTTP request handlers for the netsweep API.
// This file contains response helpers and the JSON views shared by the
// dashboard endpoints.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
)

// DisplayTimeFormat is the dashboard's timestamp layout, rendered in server
// local time.
const DisplayTimeFormat = "2006-01-02 03:04:05 PM"

// Response status values used by the dashboard.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StatusResponse is the dashboard's error body.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DeviceView is the dashboard's device shape.
type DeviceView struct {
	ID        int64  `json:"id"`
	IP        string `json:"ip"`
	MAC       string `json:"mac,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	IsActive  bool   `json:"is_active"`
	OpenPorts []int  `json:"open_ports"`
	LastSeen  string `json:"last_seen"`
}

// HistoryView is one entry of a device's history.
type HistoryView struct {
	Time   string `json:"time"`
	Ports  []int  `json:"ports"`
	Status string `json:"status"`
}

// FormatDisplayTime renders t the way the dashboard shows it.
func FormatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(DisplayTimeFormat)
}

// NewDeviceView converts a stored device.
func NewDeviceView(d *db.Device) DeviceView {
	v := DeviceView{
		ID:        d.ID,
		IP:        d.IPAddress.String(),
		IsActive:  d.IsActive,
		OpenPorts: portsOrEmpty(d.OpenPorts),
		LastSeen:  FormatDisplayTime(d.LastSeen),
	}
	if len(d.MACAddress.HardwareAddr) > 0 {
		v.MAC = d.MACAddress.String()
	}
	if d.Hostname != nil {
		v.Hostname = *d.Hostname
	}
	if d.Vendor != nil {
		v.Vendor = *d.Vendor
	}
	return v
}

// NewDeviceViews converts a list, never returning nil.
func NewDeviceViews(devices []*db.Device) []DeviceView {
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, NewDeviceView(d))
	}
	return views
}

// NewHistoryViews converts history entries, never returning nil.
func NewHistoryViews(entries []*db.HistoryEntry) []HistoryView {
	views := make([]HistoryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, HistoryView{
			Time:   FormatDisplayTime(e.ScannedAt),
			Ports:  portsOrEmpty(e.OpenPorts),
			Status: e.Status,
		})
	}
	return views
}

func portsOrEmpty(ports db.PortList) []int {
	if len(ports) == 0 {
		return []int{}
	}
	return []int(ports.Sorted())
}

// HTTPStatusForError maps the error taxonomy onto HTTP status codes.
func HTTPStatusForError(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidRange, errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodePermission:
		return http.StatusForbidden
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeScanInProgress, errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the part of err that is safe to show a client.
// Database and unclassified failures collapse to a generic message.
func PublicMessage(err error) string {
	var scanErr *errors.ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Message
	}
	var cfgErr *errors.ConfigError
	if stderrors.As(err, &cfgErr) && cfgErr.Code == errors.CodeValidation {
		return cfgErr.Message
	}

	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		var dbErr *errors.DatabaseError
		if stderrors.As(err, &dbErr) {
			return dbErr.Message
		}
		return "Not found"
	case errors.CodeDatabaseConnection, errors.CodeDatabaseQuery,
		errors.CodeDatabaseTimeout, errors.CodeDatabaseMigration:
		return "Database error"
	case errors.CodeTimeout:
		return "Scan timed out"
	case errors.CodeCanceled:
		return "Scan was canceled"
	case errors.CodeServiceUnavailable:
		return "Service is shutting down"
	default:
		return "Internal server error"
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Default().Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeStatusError writes {"status":"error","message":...}.
func writeStatusError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	writeJSON(w, r, statusCode, StatusResponse{Status: StatusError, Message: message})
}

// writeError maps err to a status code and a sanitized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeStatusError(w, r, HTTPStatusForError(err), PublicMessage(err))
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	if value := r.URL.Query().Get(key); value != "" {
		return strconv.Atoi(value)
	}
	return defaultValue, nil
}
