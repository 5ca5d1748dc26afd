// Package orchestrator runs sweeps end to end. It owns the process-wide
// single-sweep lock, drives discovery and port scanning over the worker
// pool, persists what it finds and reports progress to subscribers.
package orchestrator

//go:generate mockgen -destination=mock_store_test.go -package=orchestrator . Store

import (
	"context"
	stderrors "errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/discovery"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/workers"
)

// Sweep triggers.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

const (
	portScanJobType     = "portscan"
	defaultScanTimeout  = 10 * time.Minute
	finalizeTimeout     = 10 * time.Second
	failureMessageLimit = 500
)

// Store is the persistence a sweep needs.
type Store interface {
	CreateScan(ctx context.Context, scan *db.Scan) error
	PersistSweep(ctx context.Context, scanID uuid.UUID, network string, observations []*db.Observation) (*db.SweepRecord, error)
	FailScan(ctx context.Context, id uuid.UUID, reason string) error
}

// Discoverer finds live hosts in a range.
type Discoverer interface {
	Sweep(ctx context.Context, r *discovery.Range) (*discovery.SweepResult, error)
	Method() string
}

// PortScanner returns the open ports of one host.
type PortScanner interface {
	Scan(ctx context.Context, ip net.IP) ([]int, error)
}

// HostEnricher adds MAC and hostname details to a live host.
type HostEnricher interface {
	Enrich(ctx context.Context, host *discovery.Host)
}

// Config controls sweep limits.
type Config struct {
	// MaxHosts caps the number of addresses in one sweep.
	MaxHosts int
	// ScanTimeout bounds a whole sweep.
	ScanTimeout time.Duration
}

// Request asks for one sweep.
type Request struct {
	IPRange string
	Trigger string
}

// Result is a completed sweep: the devices seen in that run, ascending by IP.
type Result struct {
	ScanID   uuid.UUID
	Range    string
	Devices  []*db.Device
	Probed   int
	Duration time.Duration
}

// Outcome is delivered once per started sweep.
type Outcome struct {
	Result *Result
	Err    error
}

// Orchestrator coordinates sweeps. At most one runs at a time; a request
// that arrives while another sweep holds the lock is rejected.
type Orchestrator struct {
	store      Store
	discoverer Discoverer
	ports      PortScanner
	enricher   HostEnricher
	pool       *workers.Pool
	notifier   Notifier
	config     Config

	running     atomic.Bool
	activeRange atomic.Value
	wg          sync.WaitGroup
	baseCtx     context.Context
	cancel      context.CancelFunc

	metrics *metrics.PrometheusMetrics
	logger  *logging.Logger
}

// New creates an orchestrator. enricher may be nil.
func New(store Store, discoverer Discoverer, ports PortScanner, enricher HostEnricher,
	pool *workers.Pool, config Config) *Orchestrator {
	if config.MaxHosts <= 0 {
		config.MaxHosts = discovery.DefaultMaxHosts
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = defaultScanTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:      store,
		discoverer: discoverer,
		ports:      ports,
		enricher:   enricher,
		pool:       pool,
		notifier:   nopNotifier{},
		config:     config,
		baseCtx:    ctx,
		cancel:     cancel,
		metrics:    metrics.GetGlobalMetrics(),
		logger:     logging.Default().WithComponent("orchestrator"),
	}
}

// WithNotifier sets the event sink.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	if n != nil {
		o.notifier = n
	}
	return o
}

// WithMetrics replaces the metrics sink.
func (o *Orchestrator) WithMetrics(m *metrics.PrometheusMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// Active reports the range being swept, if any.
func (o *Orchestrator) Active() (string, bool) {
	if !o.running.Load() {
		return "", false
	}
	r, _ := o.activeRange.Load().(string)
	return r, true
}

// Start validates req, takes the sweep lock and runs the sweep in the
// background. The sweep is not tied to ctx: it keeps going if the caller
// goes away, bounded by the configured scan timeout.
func (o *Orchestrator) Start(ctx context.Context, req Request) (<-chan Outcome, error) {
	r, err := discovery.ExpandRange(req.IPRange, o.config.MaxHosts)
	if err != nil {
		return nil, err
	}
	if req.Trigger == "" {
		req.Trigger = TriggerAPI
	}

	if !o.running.CompareAndSwap(false, true) {
		active, _ := o.activeRange.Load().(string)
		o.metrics.IncrementSweepRejected()
		o.logger.Warn("Rejected overlapping sweep", "range", r.String(), "active_range", active, "trigger", req.Trigger)
		return nil, errors.ErrScanInProgress(active)
	}
	o.activeRange.Store(r.String())

	if o.baseCtx.Err() != nil {
		o.running.Store(false)
		return nil, errors.NewScanError(errors.CodeServiceUnavailable, "Sweeps are shutting down")
	}

	out := make(chan Outcome, 1)
	runCtx, cancel := context.WithTimeout(o.baseCtx, o.config.ScanTimeout)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer o.running.Store(false)

		result, err := o.execute(runCtx, r, req.Trigger)
		out <- Outcome{Result: result, Err: err}
		close(out)
	}()

	return out, nil
}

// Run starts a sweep and waits for it or for ctx.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	out, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	select {
	case outcome := <-out:
		return outcome.Result, outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels a running sweep and waits for it to record its failure.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) execute(ctx context.Context, r *discovery.Range, trigger string) (*Result, error) {
	start := time.Now()
	o.metrics.SetSweepActive(true)
	defer o.metrics.SetSweepActive(false)

	scan := &db.Scan{
		IPRange:    db.NetworkAddr{IPNet: *r.Network},
		Trigger:    trigger,
		HostsTotal: r.Count(),
	}
	if err := o.store.CreateScan(ctx, scan); err != nil {
		o.logger.ErrorScan("Failed to record sweep start", r.String(), err)
		o.metrics.RecordSweep(trigger, db.ScanStatusFailed, time.Since(start), 0)
		return nil, err
	}

	logger := o.logger.WithScanID(scan.ID.String())
	logger.InfoScan("Sweep started", r.String(), "hosts", r.Count(), "trigger", trigger, "method", o.discoverer.Method())
	o.publish(Event{Type: EventScanStarted, ScanID: scan.ID, Range: r.String(), Hosts: r.Count()})

	devices, err := o.sweep(ctx, scan, r)
	if err != nil {
		err = classify(err)
		o.fail(scan, err)
		logger.ErrorScan("Sweep failed", r.String(), err)
		o.metrics.RecordSweep(trigger, db.ScanStatusFailed, time.Since(start), 0)
		o.publish(Event{Type: EventScanFailed, ScanID: scan.ID, Range: r.String(), Error: err.Error()})
		return nil, err
	}

	duration := time.Since(start)
	logger.InfoScan("Sweep completed", r.String(), "alive", len(devices), "duration", duration)
	o.metrics.RecordSweep(trigger, db.ScanStatusCompleted, duration, len(devices))
	o.publish(Event{
		Type: EventScanCompleted, ScanID: scan.ID, Range: r.String(), Hosts: r.Count(), Alive: len(devices),
	})

	return &Result{ScanID: scan.ID, Range: r.String(), Devices: devices, Probed: r.Count(), Duration: duration}, nil
}

func (o *Orchestrator) sweep(ctx context.Context, scan *db.Scan, r *discovery.Range) ([]*db.Device, error) {
	found, err := o.discoverer.Sweep(ctx, r)
	if err != nil {
		return nil, err
	}

	hosts := found.Live
	openPorts, err := o.scanHosts(ctx, hosts)
	if err != nil {
		return nil, err
	}

	observations := make([]*db.Observation, len(hosts))
	for i := range hosts {
		h := &hosts[i]
		observations[i] = &db.Observation{
			IP:        h.IP,
			MAC:       h.MAC,
			Hostname:  h.Hostname,
			Vendor:    h.Vendor,
			OpenPorts: openPorts[i],
			RTT:       h.RTT,
		}
	}

	// Nothing is published until the sweep is committed.
	record, err := o.store.PersistSweep(ctx, scan.ID, r.String(), observations)
	if err != nil {
		return nil, err
	}
	if record.MarkedInactive > 0 {
		o.logger.InfoScan("Marked unseen devices inactive", r.String(), "count", record.MarkedInactive)
	}

	devices := record.Devices
	for _, device := range devices {
		o.publish(Event{Type: EventDeviceUpdated, ScanID: scan.ID, Device: device})
	}

	sort.Slice(devices, func(i, j int) bool {
		return discovery.CompareIP(devices[i].IPAddress.IP, devices[j].IPAddress.IP) < 0
	})
	return devices, nil
}

// scanHosts port-scans and enriches every live host on the pool. A host whose
// scan fails keeps an empty port set.
func (o *Orchestrator) scanHosts(ctx context.Context, hosts []discovery.Host) ([][]int, error) {
	openPorts := make([][]int, len(hosts))
	jobs := make([]workers.Job, len(hosts))

	for i := range hosts {
		h := &hosts[i]
		jobs[i] = workers.NewFuncJob(h.IP.String(), portScanJobType, func(ctx context.Context) error {
			if o.enricher != nil {
				o.enricher.Enrich(ctx, h)
			}
			ports, err := o.ports.Scan(ctx, h.IP)
			if err != nil {
				return err
			}
			openPorts[i] = ports
			return nil
		})
	}

	for i, res := range o.pool.RunBatch(ctx, jobs) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if res.Error != nil {
			o.logger.DebugProbe("Port scan failed", res.JobID, "error", res.Error)
		}
		if openPorts[i] == nil {
			openPorts[i] = []int{}
		}
	}
	return openPorts, nil
}

// fail records the failure on a fresh context; the sweep's own context may
// already be done.
func (o *Orchestrator) fail(scan *db.Scan, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	reason := cause.Error()
	if len(reason) > failureMessageLimit {
		reason = reason[:failureMessageLimit]
	}
	if err := o.store.FailScan(ctx, scan.ID, reason); err != nil {
		o.logger.ErrorScan("Failed to record sweep failure", scan.IPRange.String(), err)
	}
}

// classify turns context errors into coded sweep errors.
func classify(err error) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.WrapScanError(errors.CodeTimeout, "Scan exceeded its time limit", err)
	case stderrors.Is(err, context.Canceled):
		return errors.WrapScanError(errors.CodeCanceled, "Scan was canceled", err)
	default:
		return err
	}
}

func (o *Orchestrator) publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	o.notifier.Publish(e)
}
