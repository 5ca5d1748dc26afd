package discovery

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
)

// Probe methods.
const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
	MethodAuto = "auto"
	MethodNmap = "nmap"
)

const (
	defaultProbeTimeout = time.Second
	defaultAttempts     = 2
)

// DefaultTCPProbePorts are dialed by the TCP prober. Any answer, including
// a refusal, proves a host is up.
var DefaultTCPProbePorts = []int{80, 443, 22, 445, 139, 8080}

// Reply is the outcome of probing one address.
type Reply struct {
	Alive    bool
	RTT      time.Duration
	MAC      net.HardwareAddr
	Vendor   string
	Hostname string
	Method   string
}

// Prober checks whether one address is up. An unanswered probe returns a
// ProbeTimeout error; a missing capability returns a permission error.
type Prober interface {
	Probe(ctx context.Context, ip net.IP) (Reply, error)
	Method() string
}

// ICMPProber sends echo requests through pro-bing.
type ICMPProber struct {
	Timeout    time.Duration
	Attempts   int
	Privileged bool
}

// NewICMPProber creates an ICMP prober.
func NewICMPProber(timeout time.Duration, attempts int, privileged bool) *ICMPProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &ICMPProber{Timeout: timeout, Attempts: attempts, Privileged: privileged}
}

// Method implements Prober.
func (p *ICMPProber) Method() string { return MethodICMP }

// Probe implements Prober. It stops at the first echo reply.
func (p *ICMPProber) Probe(ctx context.Context, ip net.IP) (Reply, error) {
	host := ip.String()

	pinger, err := probing.NewPinger(host)
	if err != nil {
		return Reply{}, &errors.ProbeError{
			Code: errors.CodeProbeFailed, Message: "Failed to create pinger", Host: host, Method: MethodICMP, Cause: err,
		}
	}
	pinger.SetPrivileged(p.Privileged)
	pinger.Count = p.Attempts
	pinger.Timeout = p.Timeout
	pinger.Interval = p.Timeout / time.Duration(p.Attempts)
	pinger.OnRecv = func(*probing.Packet) {
		pinger.Stop()
	}

	if err := pinger.RunWithContext(ctx); err != nil {
		if isPermissionError(err) {
			return Reply{}, errors.ErrCapabilityUnavailable(MethodICMP, err)
		}
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		return Reply{}, &errors.ProbeError{
			Code: errors.CodeProbeFailed, Message: "Ping failed", Host: host, Method: MethodICMP, Cause: err,
		}
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return Reply{}, errors.ErrProbeTimeout(host, MethodICMP)
	}
	return Reply{Alive: true, RTT: stats.MinRtt, Method: MethodICMP}, nil
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPProber treats a completed or actively refused connect on any of its
// ports as proof of life.
type TCPProber struct {
	Ports   []int
	Timeout time.Duration
	Dialer  Dialer
}

// NewTCPProber creates a TCP connect prober.
func NewTCPProber(ports []int, timeout time.Duration) *TCPProber {
	if len(ports) == 0 {
		ports = DefaultTCPProbePorts
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &TCPProber{Ports: ports, Timeout: timeout, Dialer: &net.Dialer{}}
}

// Method implements Prober.
func (p *TCPProber) Method() string { return MethodTCP }

// Probe implements Prober. Ports are dialed in parallel; the first answer
// wins and cancels the rest.
func (p *TCPProber) Probe(ctx context.Context, ip net.IP) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	answers := make(chan bool, len(p.Ports))
	for _, port := range p.Ports {
		go func() {
			conn, err := p.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
			if err == nil {
				_ = conn.Close()
				answers <- true
				return
			}
			answers <- stderrors.Is(err, syscall.ECONNREFUSED)
		}()
	}

	for range p.Ports {
		if <-answers {
			return Reply{Alive: true, RTT: time.Since(start), Method: MethodTCP}, nil
		}
	}

	if parent := context.Cause(ctx); parent != nil && !stderrors.Is(parent, context.DeadlineExceeded) {
		return Reply{}, parent
	}
	return Reply{}, errors.ErrProbeTimeout(ip.String(), MethodTCP)
}

// AutoProber tries ICMP first and falls back to TCP. Once ICMP turns out to
// be forbidden it is skipped for the rest of the process.
type AutoProber struct {
	icmp         Prober
	tcp          Prober
	icmpDisabled atomic.Bool
	logger       *logging.Logger
}

// NewAutoProber combines an ICMP and a TCP prober.
func NewAutoProber(icmp, tcp Prober) *AutoProber {
	return &AutoProber{icmp: icmp, tcp: tcp, logger: logging.Default().WithComponent("discovery")}
}

// Method implements Prober.
func (p *AutoProber) Method() string { return MethodAuto }

// Probe implements Prober.
func (p *AutoProber) Probe(ctx context.Context, ip net.IP) (Reply, error) {
	if !p.icmpDisabled.Load() {
		reply, err := p.icmp.Probe(ctx, ip)
		switch {
		case err == nil && reply.Alive:
			return reply, nil
		case errors.IsCode(err, errors.CodePermission):
			if p.icmpDisabled.CompareAndSwap(false, true) {
				p.logger.Warn("ICMP not permitted, falling back to TCP probing", "error", err)
			}
		case ctx.Err() != nil:
			return Reply{}, ctx.Err()
		}
	}
	return p.tcp.Probe(ctx, ip)
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) || stderrors.Is(err, syscall.EPERM) || stderrors.Is(err, syscall.EACCES)
}
