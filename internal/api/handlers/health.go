package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/anstrom/netsweep/internal/logging"
)

// DatabasePinger defines the interface for database health checking.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// SweepStatus reports the range of a running sweep, if any.
type SweepStatus interface {
	Active() (string, bool)
}

const healthCheckTimeout = 5 * time.Second

// Health status values.
const (
	StatusHealthy       = "healthy"
	StatusUnhealthy     = "unhealthy"
	StatusNotConfigured = "not configured"
)

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Version     string            `json:"version"`
	Checks      map[string]string `json:"checks"`
	ActiveSweep string            `json:"active_sweep,omitempty"`
}

// VersionResponse represents version information.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// HealthHandler handles health and version endpoints.
type HealthHandler struct {
	database  DatabasePinger
	sweeps    SweepStatus
	logger    *logging.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. Either dependency may be nil.
func NewHealthHandler(database DatabasePinger, sweeps SweepStatus, logger *logging.Logger) *HealthHandler {
	return &HealthHandler{
		database:  database,
		sweeps:    sweeps,
		logger:    logger.WithComponent("api.health"),
		startTime: time.Now(),
	}
}

// Health pings the database and reports overall health.
//
//	@Summary	Health check
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   version,
		Checks:    map[string]string{},
	}

	if h.database == nil {
		resp.Checks["database"] = StatusNotConfigured
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.database.Ping(ctx); err != nil {
			h.logger.Warn("Database health check failed", "error", err)
			resp.Status = StatusUnhealthy
			resp.Checks["database"] = StatusUnhealthy
		} else {
			resp.Checks["database"] = StatusHealthy
		}
	}

	if h.sweeps != nil {
		if active, ok := h.sweeps.Active(); ok {
			resp.ActiveSweep = active
		}
	}

	status := http.StatusOK
	if resp.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

// Version reports build information.
//
//	@Summary	Build information
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	VersionResponse
//	@Router		/version [get]
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, VersionResponse{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	})
}

// Build information, set via SetBuildInfo from ldflags values in main.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// SetBuildInfo sets build information (called by main package).
func SetBuildInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}
