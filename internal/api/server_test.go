package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/orchestrator"
)

// MockStore provides a mock database for testing.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListDevices(ctx context.Context, filter db.DeviceFilter) ([]*db.Device, error) {
	args := m.Called(ctx, filter)
	devices, _ := args.Get(0).([]*db.Device)
	return devices, args.Error(1)
}

func (m *MockStore) DeviceHistory(ctx context.Context, id int64) ([]*db.HistoryEntry, error) {
	args := m.Called(ctx, id)
	entries, _ := args.Get(0).([]*db.HistoryEntry)
	return entries, args.Error(1)
}

func (m *MockStore) ListScans(ctx context.Context, limit int) ([]*db.Scan, error) {
	args := m.Called(ctx, limit)
	scans, _ := args.Get(0).([]*db.Scan)
	return scans, args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockSweeps records sweep requests.
type MockSweeps struct {
	mock.Mock
}

func (m *MockSweeps) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*orchestrator.Result)
	return result, args.Error(1)
}

func (m *MockSweeps) Active() (string, bool) {
	return "", false
}

type staticKeys map[string]bool

func (k staticKeys) Validate(key string) bool { return k[key] }

func createTestConfig() *config.Config {
	cfg := config.Default()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0
	cfg.API.ScanRateLimit = 0
	cfg.API.PublicURL = "http://netsweep.lan:8000"
	return cfg
}

func createTestServer(t *testing.T, store *MockStore, sweeps *MockSweeps, keys staticKeys) *Server {
	t.Helper()
	deps := Dependencies{
		Store:   store,
		Sweeps:  sweeps,
		Metrics: metrics.NewPrometheusMetrics(),
		Logger:  logging.NewWithWriter(logging.DefaultConfig(), &bytes.Buffer{}),
	}
	if keys != nil {
		deps.Keys = keys
	}
	server, err := New(createTestConfig(), deps)
	require.NoError(t, err)
	return server
}

func serve(s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func device(id int64, ip string, ports ...int) *db.Device {
	return &db.Device{
		ID:        id,
		IPAddress: db.IPAddr{IP: net.ParseIP(ip)},
		IsActive:  true,
		OpenPorts: db.PortList(ports),
		LastSeen:  time.Date(2026, 5, 6, 9, 5, 0, 0, time.Local),
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(createTestConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestDashboardRoutes(t *testing.T) {
	store := &MockStore{}
	store.On("ListDevices", mock.Anything, db.DeviceFilter{}).Return([]*db.Device{device(1, "192.168.1.1", 80)}, nil)
	store.On("DeviceHistory", mock.Anything, int64(1)).Return([]*db.HistoryEntry{{
		DeviceID:  1,
		ScannedAt: time.Date(2026, 5, 6, 9, 5, 0, 0, time.Local),
		OpenPorts: db.PortList{80},
		Status:    db.HistoryStatusCompleted,
	}}, nil)
	server := createTestServer(t, store, &MockSweeps{}, nil)

	for _, path := range []string{"/api/devices/", "/api/devices"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(server, http.MethodGet, path, "", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"devices":[{"id":1,"ip":"192.168.1.1","is_active":true,"open_ports":[80],"last_seen":"2026-05-06 09:05:00 AM"}]}`,
				rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}

	t.Run("history", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/history/1/", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"history":[{"time":"2026-05-06 09:05:00 AM","ports":[80],"status":"Completed"}]}`,
			rec.Body.String())
	})
}

func TestStartScanRoute(t *testing.T) {
	sweeps := &MockSweeps{}
	sweeps.On("Run", mock.Anything, mock.MatchedBy(func(req orchestrator.Request) bool {
		return req.IPRange == "10.0.0.0/30"
	})).Return(&orchestrator.Result{
		ScanID:  uuid.New(),
		Range:   "10.0.0.0/30",
		Devices: []*db.Device{device(7, "10.0.0.1", 22)},
	}, nil)
	server := createTestServer(t, &MockStore{}, sweeps, nil)

	rec := serve(server, http.MethodPost, "/api/scan/start/", `{"ip_range":"10.0.0.0/30"}`,
		http.Header{"Content-Type": []string{"application/json"}})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Len(t, body["devices"], 1)
	sweeps.AssertExpectations(t)

	t.Run("wrong method", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/scan/start/", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.JSONEq(t, `{"status":"error","message":"Invalid request method"}`, rec.Body.String())
	})
}

func TestAuthenticationProtectsScanStart(t *testing.T) {
	store := &MockStore{}
	store.On("ListDevices", mock.Anything, mock.Anything).Return([]*db.Device{}, nil)
	sweeps := &MockSweeps{}
	server := createTestServer(t, store, sweeps, staticKeys{"ns_secret": true})

	rec := serve(server, http.MethodPost, "/api/scan/start/", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	sweeps.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)

	rec = serve(server, http.MethodGet, "/api/devices/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"devices":[]}`, rec.Body.String())
}

func TestOperationalRoutes(t *testing.T) {
	store := &MockStore{}
	store.On("Ping", mock.Anything).Return(nil)
	server := createTestServer(t, store, &MockSweeps{}, nil)

	t.Run("not found", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/nope/", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"status":"error","message":"Not found"}`, rec.Body.String())
	})

	t.Run("health", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		serve(server, http.MethodGet, "/api/health", "", nil)
		rec := serve(server, http.MethodGet, "/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `netsweep_api_http_requests_total{method="GET",route="/api/health",status="OK"}`)
	})

	t.Run("index", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"dashboard":"http://netsweep.lan:8000"`)
	})

	t.Run("docs redirect", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/docs", "", nil)
		assert.Equal(t, http.StatusMovedPermanently, rec.Code)
		assert.Equal(t, "/swagger/index.html", rec.Header().Get("Location"))
	})

	t.Run("cors preflight", func(t *testing.T) {
		rec := serve(server, http.MethodOptions, "/api/scan/start/", "", http.Header{
			"Origin":                        []string{"http://dashboard.lan"},
			"Access-Control-Request-Method": []string{http.MethodPost},
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	assert.Equal(t, "http://netsweep.lan:8000", server.DashboardURL())
}

func TestServeStopsOnCancel(t *testing.T) {
	server := createTestServer(t, &MockStore{}, &MockSweeps{}, nil)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/docs")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
