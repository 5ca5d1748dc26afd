package discovery

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
)

// RangeProber discovers a whole range in one call instead of one job per
// address.
type RangeProber interface {
	ProbeRange(ctx context.Context, r *Range) ([]Host, error)
}

// NmapProber runs nmap host discovery (-sn). nmap reports MAC and vendor for
// hosts on the local segment when run with enough privilege.
type NmapProber struct {
	Timeout time.Duration
	logger  *logging.Logger
}

// NewNmapProber creates an nmap-backed prober.
func NewNmapProber(timeout time.Duration) *NmapProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &NmapProber{Timeout: timeout, logger: logging.Default().WithComponent("discovery")}
}

// Method implements Prober.
func (p *NmapProber) Method() string { return MethodNmap }

// Probe implements Prober for a single address.
func (p *NmapProber) Probe(ctx context.Context, ip net.IP) (Reply, error) {
	r, err := ExpandRange(ip.String(), 1)
	if err != nil {
		return Reply{}, err
	}
	hosts, err := p.ProbeRange(ctx, r)
	if err != nil {
		return Reply{}, err
	}
	if len(hosts) == 0 {
		return Reply{}, errors.ErrProbeTimeout(ip.String(), MethodNmap)
	}
	h := hosts[0]
	return Reply{Alive: true, RTT: h.RTT, MAC: h.MAC, Vendor: h.Vendor, Hostname: h.Hostname, Method: MethodNmap}, nil
}

// ProbeRange implements RangeProber.
func (p *NmapProber) ProbeRange(ctx context.Context, r *Range) ([]Host, error) {
	// The sweep's own deadline still applies when it is shorter.
	ctx, cancel := context.WithTimeout(ctx, nmapBudget(r.Count(), p.Timeout))
	defer cancel()

	scanner, err := nmap.NewScanner(ctx, buildNmapOptions(r.String(), p.Timeout)...)
	if err != nil {
		if stderrors.Is(err, nmap.ErrNmapNotInstalled) {
			return nil, errors.ErrCapabilityUnavailable(MethodNmap, err)
		}
		return nil, errors.WrapScanError(errors.CodeProbeFailed, "Failed to create nmap scanner", err)
	}

	result, warnings, err := scanner.Run()
	if warnings != nil && len(*warnings) > 0 {
		p.logger.Debug("nmap reported warnings", "range", r.String(), "warnings", *warnings)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.WrapScanError(errors.CodeProbeFailed, "nmap host discovery failed", err)
	}

	hosts := make([]Host, 0, len(result.Hosts))
	for i := range result.Hosts {
		if h, ok := convertNmapHost(&result.Hosts[i]); ok && r.Contains(h.IP) {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}

const (
	// nmapBudgetFloor is the minimum budget in probe timeouts.
	nmapBudgetFloor = 10
	// nmapHostsPerTimeout is how many silent hosts nmap works through per
	// probe timeout at the aggressive template.
	nmapHostsPerTimeout = 8
)

// nmapBudget bounds one nmap run over hosts addresses. Silent hosts cost
// nmap up to a full timeout each, spread over its parallel probes.
func nmapBudget(hosts int, timeout time.Duration) time.Duration {
	perHost := time.Duration(hosts) * timeout / nmapHostsPerTimeout
	return nmapBudgetFloor*timeout + perHost
}

// buildNmapOptions picks a timing template from the probe timeout.
func buildNmapOptions(network string, timeout time.Duration) []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(network),
		nmap.WithPingScan(),
	}

	switch {
	case timeout <= 5*time.Second:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingAggressive))
	case timeout <= 15*time.Second:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal))
	default:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingPolite))
	}
	return options
}

func convertNmapHost(host *nmap.Host) (Host, bool) {
	if host.Status.State != "up" {
		return Host{}, false
	}

	var out Host
	for _, addr := range host.Addresses {
		switch addr.AddrType {
		case "ipv4":
			out.IP = net.ParseIP(addr.Addr).To4()
		case "mac":
			if mac, err := net.ParseMAC(addr.Addr); err == nil {
				out.MAC = mac
				out.Vendor = addr.Vendor
			}
		}
	}
	if out.IP == nil {
		return Host{}, false
	}

	if len(host.Hostnames) > 0 {
		out.Hostname = host.Hostnames[0].Name
	}
	if srtt := host.Times.SRTT; srtt != "" {
		if us, err := time.ParseDuration(srtt + "us"); err == nil {
			out.RTT = us
		}
	}
	out.Method = MethodNmap
	return out, true
}
