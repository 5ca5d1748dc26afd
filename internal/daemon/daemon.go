// Package daemon assembles netsweep's long-running service: it connects
// the database, builds the sweep pipeline, starts the scheduler and the
// API server, and tears everything down in order on shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anstrom/netsweep/internal/api"
	"github.com/anstrom/netsweep/internal/api/handlers"
	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/auth"
	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/discovery"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/orchestrator"
	"github.com/anstrom/netsweep/internal/scanning"
	"github.com/anstrom/netsweep/internal/scheduler"
	"github.com/anstrom/netsweep/internal/workers"
)

// File permission constants.
const (
	DefaultDirPermissions  = 0o750
	DefaultFilePermissions = 0o600
)

// DefaultScheduleName names the sweep configured under schedule.*.
const DefaultScheduleName = "default"

// Stack is the sweep pipeline built from configuration.
type Stack struct {
	Pool         *workers.Pool
	Budget       *scanning.SocketBudget
	Orchestrator *orchestrator.Orchestrator
}

// BuildStack wires prober, port scanner, enricher and worker pool into an
// orchestrator over store. The pool is started; Close releases it.
func BuildStack(cfg *config.Config, store orchestrator.Store, m *metrics.PrometheusMetrics,
	notifier orchestrator.Notifier) (*Stack, error) {
	s := cfg.Scanning
	ports := s.PortList()

	prober, err := discovery.NewProber(s.ProbeMethod, s.ProbeTimeout, s.ProbeRetries+1, s.Privileged, ports)
	if err != nil {
		return nil, err
	}

	pool := workers.New(workers.Config{
		Size:            s.Workers,
		QueueSize:       s.QueueSize,
		RateLimit:       s.RateLimit,
		ShutdownTimeout: cfg.Daemon.ShutdownTimeout,
	}).WithMetrics(m)
	pool.Start()

	budget := scanning.NewSocketBudget(s.MaxSockets)
	scanner := scanning.NewPortScanner(scanning.Config{
		Ports:   ports,
		Timeout: s.PortTimeout,
		PerHost: s.PortsPerHost,
	}, budget).WithMetrics(m)

	enricher := discovery.NewEnricher(
		discovery.NewARPTable(""),
		discovery.NewReverseResolver(s.DNSServer, s.ProbeTimeout),
		s.SNMP,
	)

	engine := discovery.NewEngine(prober, pool).WithMetrics(m)
	orch := orchestrator.New(store, engine, scanner, enricher, pool, orchestrator.Config{
		MaxHosts:    s.MaxHosts,
		ScanTimeout: s.ScanTimeout,
	}).WithNotifier(notifier).WithMetrics(m)

	return &Stack{Pool: pool, Budget: budget, Orchestrator: orch}, nil
}

// Close cancels a running sweep, waits for it, and stops the pool.
func (s *Stack) Close(ctx context.Context) error {
	var firstErr error
	if err := s.Orchestrator.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("orchestrator shutdown: %w", err)
	}
	if err := s.Pool.Shutdown(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("worker pool shutdown: %w", err)
	}
	if err := s.Budget.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Daemon represents the main service process.
type Daemon struct {
	config    *config.Config
	logger    *logging.Logger
	metrics   *metrics.PrometheusMetrics
	pidFile   string
	startedAt time.Time

	database  *db.DB
	store     *db.Store
	stack     *Stack
	scheduler *scheduler.Scheduler
	events    *handlers.EventHub
	apiServer *api.Server
}

// New creates a new daemon instance.
func New(cfg *config.Config, logger *logging.Logger) *Daemon {
	if logger == nil {
		logger = logging.Default()
	}
	return &Daemon{
		config:  cfg,
		logger:  logger.WithComponent("daemon"),
		metrics: metrics.GetGlobalMetrics(),
		pidFile: cfg.Daemon.PIDFile,
	}
}

// Run connects the database, assembles the service and serves until ctx
// ends or SIGINT/SIGTERM arrives.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := d.createPIDFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer d.removePIDFile()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := d.setupSignalHandlers(cancel)
	defer stopSignals()

	d.logger.InfoDatabase("Connecting to database",
		"host", d.config.Database.Host, "database", d.config.Database.Database)
	database, err := db.ConnectAndMigrate(ctx, &d.config.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if err := d.Assemble(ctx, database); err != nil {
		_ = database.Close()
		return err
	}
	defer d.shutdown()

	if err := d.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	d.logger.Info("netsweep started",
		"address", d.apiServer.GetAddress(),
		"dashboard_url", d.apiServer.DashboardURL())

	// Start returns once ctx ends and the server has drained.
	errCh := make(chan error, 1)
	go func() { errCh <- d.apiServer.Start(ctx) }()

	select {
	case <-ctx.Done():
		d.logger.Info("Shutdown signal received")
		return <-errCh
	case err := <-errCh:
		cancel()
		return err
	}
}

// Assemble builds every component over an open database. Scans left
// running by a previous process are marked failed first.
func (d *Daemon) Assemble(ctx context.Context, database *db.DB) error {
	d.startedAt = time.Now()
	d.database = database
	d.store = db.NewStore(database)

	if n, err := d.store.Scans.FailStale(ctx); err != nil {
		d.logger.ErrorDatabase("Failed to close out interrupted scans", err)
	} else if n > 0 {
		d.logger.Warn("Marked interrupted scans as failed", "count", n)
	}

	d.events = handlers.NewEventHub(d.config.API.CORSOrigins, d.logger, d.metrics)

	stack, err := BuildStack(d.config, d.store, d.metrics, d.events)
	if err != nil {
		d.events.Close()
		return fmt.Errorf("failed to build sweep pipeline: %w", err)
	}
	d.stack = stack

	d.scheduler = scheduler.NewScheduler(stack.Orchestrator)
	if d.config.Schedule.Enabled {
		if _, err := d.scheduler.AddSweep(DefaultScheduleName, d.config.Schedule.Cron, d.config.Schedule.Ranges); err != nil {
			d.abortAssembly()
			return fmt.Errorf("failed to schedule sweeps: %w", err)
		}
	}

	deps := api.Dependencies{
		Store:     d.store,
		Sweeps:    stack.Orchestrator,
		Scheduler: d.scheduler,
		Events:    d.events,
		Metrics:   d.metrics,
		Logger:    d.logger,
	}
	if len(d.config.API.APIKeyHashes) > 0 {
		keys := auth.NewKeySet(d.config.API.APIKeyHashes)
		if keys.Len() > 0 {
			deps.Keys = middleware.KeyValidator(keys)
			d.logger.Info("API key authentication enabled", "keys", keys.Len())
		}
	}

	server, err := api.New(d.config, deps)
	if err != nil {
		d.abortAssembly()
		return fmt.Errorf("API server creation failed: %w", err)
	}
	d.apiServer = server
	return nil
}

func (d *Daemon) abortAssembly() {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Daemon.ShutdownTimeout)
	defer cancel()
	d.events.Close()
	_ = d.stack.Close(ctx)
}

// shutdown stops components in dependency order: no new scheduled sweeps,
// then the running sweep, then storage.
func (d *Daemon) shutdown() {
	d.logger.Info("Performing cleanup")
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Daemon.ShutdownTimeout)
	defer cancel()

	if d.scheduler != nil {
		d.scheduler.Stop(ctx)
	}
	if d.events != nil {
		d.events.Close()
	}
	if d.stack != nil {
		if err := d.stack.Close(ctx); err != nil {
			d.logger.Error("Sweep pipeline shutdown error", "error", err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.ErrorDatabase("Error closing database", err)
		}
	}
	d.logger.Info("Cleanup completed")
}

// setupSignalHandlers cancels on SIGINT/SIGTERM and dumps status on SIGUSR1.
// The returned func stops listening.
func (d *Daemon) setupSignalHandlers(cancel context.CancelFunc) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigChan:
				d.logger.Info("Received signal", "signal", sig.String())
				switch sig {
				case syscall.SIGTERM, syscall.SIGINT:
					cancel()
				case syscall.SIGUSR1:
					d.dumpStatus()
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// dumpStatus logs a snapshot of the running service.
func (d *Daemon) dumpStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	fields := []any{
		"pid", os.Getpid(),
		"uptime", time.Since(d.startedAt).Round(time.Second).String(),
		"goroutines", runtime.NumGoroutine(),
		"alloc_kb", m.Alloc / 1024,
		"sys_kb", m.Sys / 1024,
		"num_gc", m.NumGC,
	}

	if d.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := d.store.Ping(ctx)
		cancel()
		if err != nil {
			fields = append(fields, "database", "disconnected")
		} else {
			fields = append(fields, "database", "connected")
		}
	}
	if d.stack != nil {
		if active, ok := d.stack.Orchestrator.Active(); ok {
			fields = append(fields, "active_sweep", active)
		}
		fields = append(fields, "sockets_in_use", d.stack.Budget.InUse(), "sockets_peak", d.stack.Budget.Peak())
	}
	if d.events != nil {
		fields = append(fields, "event_clients", d.events.Clients())
	}
	if d.scheduler != nil {
		fields = append(fields, "scheduled_jobs", len(d.scheduler.Jobs()))
	}

	d.logger.Info("Status dump", fields...)
}

// createPIDFile writes the current PID, refusing when another live
// process owns the file.
func (d *Daemon) createPIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	dir := filepath.Dir(d.pidFile)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if err := d.checkExistingPID(); err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.Info("Created PID file", "path", d.pidFile, "pid", pid)
	return nil
}

func (d *Daemon) removePIDFile() {
	if d.pidFile == "" {
		return
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("Error removing PID file", "path", d.pidFile, "error", err)
	}
}

// checkExistingPID removes a stale or unreadable PID file and fails when
// the recorded process is still alive.
func (d *Daemon) checkExistingPID() error {
	data, err := os.ReadFile(d.pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read existing PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		_ = os.Remove(d.pidFile)
		return nil
	}

	if isProcessRunning(pid) {
		return fmt.Errorf("netsweep already running with PID %d", pid)
	}

	d.logger.Warn("Removing stale PID file", "path", d.pidFile, "pid", pid)
	_ = os.Remove(d.pidFile)
	return nil
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
