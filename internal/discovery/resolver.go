package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultResolvConf = "/etc/resolv.conf"
	defaultDNSTimeout = time.Second
)

// ReverseResolver looks up PTR names for addresses.
type ReverseResolver struct {
	server string
	client *dns.Client
}

// NewReverseResolver queries server (host:port). An empty server uses the
// first nameserver in /etc/resolv.conf, or the Go resolver if none is found.
func NewReverseResolver(server string, timeout time.Duration) *ReverseResolver {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}
	if server == "" {
		if conf, err := dns.ClientConfigFromFile(defaultResolvConf); err == nil && len(conf.Servers) > 0 {
			server = net.JoinHostPort(conf.Servers[0], conf.Port)
		}
	}
	return &ReverseResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Lookup returns the PTR name of ip without its trailing dot.
func (r *ReverseResolver) Lookup(ctx context.Context, ip net.IP) (string, error) {
	if r.server == "" {
		names, err := net.DefaultResolver.LookupAddr(ctx, ip.String())
		if err != nil || len(names) == 0 {
			return "", err
		}
		return strings.TrimSuffix(names[0], "."), nil
	}

	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", err
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("PTR lookup for %s: %s", ip, dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", nil
}
