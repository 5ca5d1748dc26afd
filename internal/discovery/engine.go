// Package discovery finds live hosts in an IPv4 range. It expands CIDR
// ranges, sends liveness probes over the shared worker pool, and enriches
// live hosts with hostname, MAC and SNMP details.
package discovery

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/workers"
)

const probeJobType = "probe"

// Host is a live address found by a sweep.
type Host struct {
	IP       net.IP
	RTT      time.Duration
	MAC      net.HardwareAddr
	Vendor   string
	Hostname string
	Method   string
}

// SweepResult is the probe phase outcome for one range.
type SweepResult struct {
	Range    *Range
	Probed   int
	Live     []Host
	Duration time.Duration
}

// Engine probes every address of a range through a worker pool.
type Engine struct {
	prober  Prober
	pool    *workers.Pool
	metrics *metrics.PrometheusMetrics
	logger  *logging.Logger
}

// NewEngine creates a discovery engine.
func NewEngine(prober Prober, pool *workers.Pool) *Engine {
	return &Engine{
		prober:  prober,
		pool:    pool,
		metrics: metrics.GetGlobalMetrics(),
		logger:  logging.Default().WithComponent("discovery"),
	}
}

// WithMetrics replaces the metrics sink.
func (e *Engine) WithMetrics(m *metrics.PrometheusMetrics) *Engine {
	e.metrics = m
	return e
}

// Method reports the configured probe method.
func (e *Engine) Method() string {
	return e.prober.Method()
}

// Sweep probes every host address in r. Unanswered probes count as offline.
// It fails only when ctx ends or every probe reports a fatal condition such
// as a missing raw-socket capability.
func (e *Engine) Sweep(ctx context.Context, r *Range) (*SweepResult, error) {
	start := time.Now()
	e.logger.InfoScan("Starting host discovery", r.String(), "hosts", r.Count(), "method", e.prober.Method())

	var (
		live []Host
		err  error
	)
	if rp, ok := e.prober.(RangeProber); ok {
		live, err = rp.ProbeRange(ctx, r)
	} else {
		live, err = e.sweepPerHost(ctx, r)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(live, func(i, j int) bool { return CompareIP(live[i].IP, live[j].IP) < 0 })

	result := &SweepResult{Range: r, Probed: r.Count(), Live: live, Duration: time.Since(start)}
	e.logger.InfoScan("Host discovery finished", r.String(),
		"alive", len(live), "probed", result.Probed, "duration", result.Duration)
	return result, nil
}

func (e *Engine) sweepPerHost(ctx context.Context, r *Range) ([]Host, error) {
	addrs := r.Addresses()
	replies := make([]Reply, len(addrs))
	jobs := make([]workers.Job, len(addrs))

	for i, ip := range addrs {
		jobs[i] = workers.NewFuncJob(ip.String(), probeJobType, func(ctx context.Context) error {
			reply, err := e.prober.Probe(ctx, ip)
			if err != nil {
				return err
			}
			replies[i] = reply
			return nil
		})
	}

	results := e.pool.RunBatch(ctx, jobs)

	var (
		fatal      error
		fatalCount int
	)
	live := make([]Host, 0)
	for i, res := range results {
		if res.Error != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.IsFatal(res.Error) {
				if fatal == nil {
					fatal = res.Error
				}
				fatalCount++
			}
			e.logger.DebugProbe("Host offline", res.JobID, "error", res.Error)
			e.metrics.RecordProbe(e.prober.Method(), false, 0)
			continue
		}

		reply := replies[i]
		e.metrics.RecordProbe(e.prober.Method(), reply.Alive, reply.RTT)
		if !reply.Alive {
			continue
		}
		live = append(live, Host{
			IP:       addrs[i],
			RTT:      reply.RTT,
			MAC:      reply.MAC,
			Vendor:   reply.Vendor,
			Hostname: reply.Hostname,
			Method:   reply.Method,
		})
	}

	if fatal != nil {
		if fatalCount == len(results) {
			return nil, fatal
		}
		e.logger.Warn("Some probes could not run", "range", r.String(),
			"failed", fatalCount, "probed", len(results), "error", fatal)
	}
	return live, nil
}

// NewProber builds the prober for a configured method.
func NewProber(method string, timeout time.Duration, attempts int, privileged bool, tcpPorts []int) (Prober, error) {
	switch method {
	case MethodICMP:
		return NewICMPProber(timeout, attempts, privileged), nil
	case MethodTCP:
		return NewTCPProber(tcpPorts, timeout), nil
	case MethodAuto, "":
		return NewAutoProber(NewICMPProber(timeout, attempts, privileged), NewTCPProber(tcpPorts, timeout)), nil
	case MethodNmap:
		return NewNmapProber(timeout), nil
	default:
		return nil, errors.ErrConfigInvalid("scanning.probe_method", method)
	}
}
