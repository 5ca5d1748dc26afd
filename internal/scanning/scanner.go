package scanning

import (
	"context"
	"net"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
)

const (
	defaultPortTimeout = 500 * time.Millisecond
	defaultPerHost     = 16
)

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config controls a PortScanner.
type Config struct {
	// Ports to test on every host.
	Ports []int
	// Timeout bounds each connect attempt.
	Timeout time.Duration
	// PerHost bounds parallel dials against one host.
	PerHost int
}

// PortScanner tests a port list on one host at a time.
type PortScanner struct {
	config  Config
	budget  *SocketBudget
	dialer  Dialer
	metrics *metrics.PrometheusMetrics
	logger  *logging.Logger
}

// NewPortScanner creates a scanner drawing sockets from budget.
func NewPortScanner(config Config, budget *SocketBudget) *PortScanner {
	if len(config.Ports) == 0 {
		config.Ports = DefaultPorts
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultPortTimeout
	}
	if config.PerHost <= 0 {
		config.PerHost = defaultPerHost
	}
	if budget == nil {
		budget = NewSocketBudget(config.PerHost)
	}

	return &PortScanner{
		config:  config,
		budget:  budget,
		dialer:  &net.Dialer{},
		metrics: metrics.GetGlobalMetrics(),
		logger:  logging.Default().WithComponent("scanning"),
	}
}

// WithDialer replaces the dialer. Used by tests.
func (s *PortScanner) WithDialer(d Dialer) *PortScanner {
	s.dialer = d
	return s
}

// WithMetrics replaces the metrics sink.
func (s *PortScanner) WithMetrics(m *metrics.PrometheusMetrics) *PortScanner {
	s.metrics = m
	return s
}

// Ports returns the configured port list.
func (s *PortScanner) Ports() []int {
	return s.config.Ports
}

// Scan returns the open ports of ip in ascending order. Unreachable ports are
// closed, not errors; only the end of ctx fails a scan.
func (s *PortScanner) Scan(ctx context.Context, ip net.IP) ([]int, error) {
	open := make([]bool, len(s.config.Ports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.PerHost)

	for i, port := range s.config.Ports {
		g.Go(func() error {
			if err := s.budget.Acquire(gctx); err != nil {
				return err
			}
			defer s.budget.Release()

			open[i] = s.checkPort(gctx, ip, port)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports := make([]int, 0)
	for i, ok := range open {
		if ok {
			ports = append(ports, s.config.Ports[i])
		}
	}
	sort.Ints(ports)

	s.logger.DebugProbe("Port scan finished", ip.String(), "open_ports", ports)
	return ports, nil
}

func (s *PortScanner) checkPort(ctx context.Context, ip net.IP, port int) bool {
	dialCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	if err != nil {
		s.metrics.RecordPort(false)
		return false
	}
	_ = conn.Close()

	s.metrics.RecordPort(true)
	return true
}
