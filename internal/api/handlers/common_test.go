package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
)

func createTestLogger() *logging.Logger {
	return logging.NewWithWriter(logging.DefaultConfig(), &bytes.Buffer{})
}

func strPtr(s string) *string { return &s }

// fakeStore serves canned devices, history and scans.
type fakeStore struct {
	devices  []*db.Device
	history  map[int64][]*db.HistoryEntry
	scans    []*db.Scan
	err      error
	pingErr  error
	filter   db.DeviceFilter
	limit    int
	historyQ []int64
}

func (s *fakeStore) ListDevices(_ context.Context, filter db.DeviceFilter) ([]*db.Device, error) {
	s.filter = filter
	return s.devices, s.err
}

func (s *fakeStore) DeviceHistory(_ context.Context, id int64) ([]*db.HistoryEntry, error) {
	s.historyQ = append(s.historyQ, id)
	if s.err != nil {
		return nil, s.err
	}
	entries, ok := s.history[id]
	if !ok {
		return nil, errors.ErrNotFound("device", id)
	}
	return entries, nil
}

func (s *fakeStore) ListScans(_ context.Context, limit int) ([]*db.Scan, error) {
	s.limit = limit
	return s.scans, s.err
}

func (s *fakeStore) Ping(context.Context) error {
	return s.pingErr
}

func testDevice(id int64, ip string, ports ...int) *db.Device {
	return &db.Device{
		ID:        id,
		IPAddress: db.IPAddr{IP: net.ParseIP(ip)},
		IsActive:  true,
		OpenPorts: db.PortList(ports),
		LastSeen:  time.Date(2026, 5, 6, 14, 30, 0, 0, time.Local),
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestFormatDisplayTime(t *testing.T) {
	assert.Equal(t, "2026-05-06 02:30:00 PM", FormatDisplayTime(time.Date(2026, 5, 6, 14, 30, 0, 0, time.Local)))
	assert.Equal(t, "2026-05-06 09:05:07 AM", FormatDisplayTime(time.Date(2026, 5, 6, 9, 5, 7, 0, time.Local)))
	assert.Empty(t, FormatDisplayTime(time.Time{}))
}

func TestDeviceViewJSON(t *testing.T) {
	t.Run("optional fields are omitted", func(t *testing.T) {
		data, err := json.Marshal(NewDeviceView(testDevice(3, "192.168.1.1")))
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"id": 3,
			"ip": "192.168.1.1",
			"is_active": true,
			"open_ports": [],
			"last_seen": "2026-05-06 02:30:00 PM"
		}`, string(data))
	})

	t.Run("all fields", func(t *testing.T) {
		d := testDevice(4, "192.168.1.2", 443, 22)
		mac, _ := net.ParseMAC("00:11:22:AA:BB:CC")
		d.MACAddress = db.MACAddr{HardwareAddr: mac}
		d.Hostname = strPtr("nas.lan")
		d.Vendor = strPtr("Synology")

		data, err := json.Marshal(NewDeviceView(d))
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"id": 4,
			"ip": "192.168.1.2",
			"mac": "00:11:22:aa:bb:cc",
			"hostname": "nas.lan",
			"vendor": "Synology",
			"is_active": true,
			"open_ports": [22, 443],
			"last_seen": "2026-05-06 02:30:00 PM"
		}`, string(data))
	})

	t.Run("nil list encodes as empty array", func(t *testing.T) {
		data, err := json.Marshal(NewDeviceViews(nil))
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})
}

func TestHTTPStatusForError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid range", errors.ErrInvalidRange("x", "not a CIDR"), http.StatusBadRequest, "Invalid IP range: not a CIDR"},
		{"scan in progress", errors.ErrScanInProgress("10.0.0.0/24"), http.StatusConflict, "A scan is already in progress"},
		{"capability", errors.ErrCapabilityUnavailable("icmp", nil), http.StatusForbidden, ""},
		{"rate limited", errors.NewScanError(errors.CodeRateLimited, "slow down"), http.StatusTooManyRequests, "slow down"},
		{"database", errors.ErrDatabaseQuery("SELECT secret", fmt.Errorf("pq: boom")), http.StatusInternalServerError, "Database error"},
		{"not found", errors.ErrNotFound("scheduled job", 7), http.StatusNotFound, "scheduled job 7 not found"},
		{"validation config error", errors.ErrConfigInvalid("cron", "x"), http.StatusBadRequest, "Invalid configuration value"},
		{"plain error", fmt.Errorf("disk on fire"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatusForError(tt.err))
			if tt.message != "" {
				assert.Equal(t, tt.message, PublicMessage(tt.err))
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.ErrScanInProgress("10.0.0.0/24"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"error","message":"A scan is already in progress"}`, rec.Body.String())
}
