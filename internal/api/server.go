// Package api serves the netsweep dashboard API: sweep start, device
// listing, per-device history and the operational endpoints around them.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/anstrom/netsweep/docs" // registers the OpenAPI document
	apihandlers "github.com/anstrom/netsweep/internal/api/handlers"
	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
)

const serverShutdownTimeout = 30 * time.Second

// Store is the persistence the API reads from.
type Store interface {
	apihandlers.DeviceStore
	apihandlers.ScanLister
	apihandlers.DatabasePinger
}

// Sweeps runs sweeps and reports the one in flight.
type Sweeps interface {
	apihandlers.Sweeper
	apihandlers.SweepStatus
}

// Dependencies are the services behind the routes. Scheduler, Events and
// Keys are optional.
type Dependencies struct {
	Store     Store
	Sweeps    Sweeps
	Scheduler apihandlers.ScheduleManager
	Events    *apihandlers.EventHub
	Keys      middleware.KeyValidator
	Metrics   *metrics.PrometheusMetrics
	Logger    *logging.Logger
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     config.APIConfig
	deps       Dependencies
	logger     *logging.Logger
	dashboard  string
}

// New creates a new API server instance.
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Store == nil || deps.Sweeps == nil {
		return nil, fmt.Errorf("api server requires a store and a sweeper")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.GetGlobalMetrics()
	}

	s := &Server{
		router: mux.NewRouter(),
		config: cfg.API,
		deps:   deps,
		logger: deps.Logger.WithComponent("api"),
	}

	s.setupRoutes(cfg)
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:              cfg.API.Address(),
		Handler:           s.handler(),
		ReadTimeout:       cfg.API.ReadTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
	}

	return s, nil
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("Starting API server",
		"address", listener.Addr().String(),
		"dashboard_url", s.dashboard,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop disconnects event clients and gracefully stops the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	// Hijacked websocket connections are not tracked by Shutdown.
	if s.deps.Events != nil {
		s.deps.Events.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

// DashboardURL is the address encoded into the QR code.
func (s *Server) DashboardURL() string {
	return s.dashboard
}

func (s *Server) setupRoutes(cfg *config.Config) {
	d := s.deps
	scan := apihandlers.NewScanHandler(d.Sweeps, d.Store, cfg.Scanning.DefaultRange, d.Logger)
	devices := apihandlers.NewDeviceHandler(d.Store, d.Logger)
	health := apihandlers.NewHealthHandler(d.Store, d.Sweeps, d.Logger)
	report := apihandlers.NewReportHandler(d.Store, d.Logger)
	qr := apihandlers.NewQRHandler(cfg.API.PublicURL, cfg.API.Port, d.Logger)
	s.dashboard = qr.DashboardURL()

	protect := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		if d.Keys != nil {
			wrapped = middleware.Authentication(d.Keys, d.Logger)(wrapped)
		}
		return wrapped
	}

	// The event stream sits outside the compressed subrouter.
	if d.Events != nil {
		handleBoth(s.router, "/api/events", http.HandlerFunc(d.Events.ServeWS), http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(handlers.CompressHandler)

	startScan := middleware.RateLimit(cfg.API.ScanRateLimit, d.Logger)(protect(scan.StartScan))
	handleBoth(api, "/scan/start", startScan, http.MethodPost)
	handleBoth(api, "/devices", http.HandlerFunc(devices.ListDevices), http.MethodGet)
	handleBoth(api, "/history/{deviceId}", http.HandlerFunc(devices.History), http.MethodGet)
	handleBoth(api, "/scans", http.HandlerFunc(scan.ListScans), http.MethodGet)
	handleBoth(api, "/health", http.HandlerFunc(health.Health), http.MethodGet)
	handleBoth(api, "/version", http.HandlerFunc(health.Version), http.MethodGet)
	handleBoth(api, "/report/download", http.HandlerFunc(report.Download), http.MethodGet)
	handleBoth(api, "/qr", http.HandlerFunc(qr.QRCode), http.MethodGet)

	if d.Scheduler != nil {
		schedules := apihandlers.NewScheduleHandler(d.Scheduler, d.Logger)
		handleBoth(api, "/schedules", http.HandlerFunc(schedules.ListSchedules), http.MethodGet)
		handleBoth(api, "/schedules", protect(schedules.CreateSchedule), http.MethodPost)
		handleBoth(api, "/schedules/{id}", protect(schedules.DeleteSchedule), http.MethodDelete)
	}

	s.router.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
	))
	s.router.HandleFunc("/docs", s.redirectToSwagger).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "Invalid request method")
	})
}

// handleBoth registers path with and without the trailing slash the
// dashboard uses.
func handleBoth(r *mux.Router, path string, h http.Handler, methods ...string) {
	r.Handle(path, h).Methods(methods...)
	r.Handle(path+"/", h).Methods(methods...)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.deps.Logger))
	s.router.Use(middleware.Logging(s.deps.Logger))
	s.router.Use(middleware.Metrics(s.deps.Metrics))
	s.router.Use(middleware.SecurityHeaders())
}

// handler wraps the router in CORS so preflight requests are answered
// before route matching.
func (s *Server) handler() http.Handler {
	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		return s.router
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.APIKeyHeader, middleware.RequestIDHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader, "Content-Disposition", "X-Dashboard-URL"}),
	)(s.router)
}

type indexResponse struct {
	Service   string            `json:"service"`
	Dashboard string            `json:"dashboard"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, indexResponse{
		Service:   "netsweep",
		Dashboard: s.dashboard,
		Endpoints: map[string]string{
			"scan_start": "/api/scan/start/",
			"devices":    "/api/devices/",
			"history":    "/api/history/{deviceId}/",
			"scans":      "/api/scans/",
			"events":     "/api/events",
			"report":     "/api/report/download/",
			"qr":         "/api/qr/",
			"health":     "/api/health",
			"metrics":    "/metrics",
			"docs":       "/swagger/",
		},
	})
}

func (s *Server) redirectToSwagger(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apihandlers.StatusResponse{Status: apihandlers.StatusError, Message: message})
}
