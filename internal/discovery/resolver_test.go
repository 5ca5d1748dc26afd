package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPTRServer serves PTR answers from names on a local UDP port.
func startPTRServer(t *testing.T, names map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		q := req.Question[0]
		if name, ok := names[q.Name]; ok && q.Qtype == dns.TypePTR {
			resp.Answer = append(resp.Answer, &dns.PTR{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
				Ptr: name,
			})
		} else {
			resp.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(resp)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestReverseResolver(t *testing.T) {
	addr := startPTRServer(t, map[string]string{
		"1.1.168.192.in-addr.arpa.": "router.lan.",
	})
	resolver := NewReverseResolver(addr, time.Second)

	t.Run("known address", func(t *testing.T) {
		name, err := resolver.Lookup(context.Background(), net.ParseIP("192.168.1.1"))
		require.NoError(t, err)
		assert.Equal(t, "router.lan", name)
	})

	t.Run("unknown address", func(t *testing.T) {
		name, err := resolver.Lookup(context.Background(), net.ParseIP("192.168.1.2"))
		assert.Error(t, err)
		assert.Empty(t, name)
	})
}

type mapNeighbors map[string]string

func (m mapNeighbors) Lookup(ip net.IP) net.HardwareAddr {
	if s, ok := m[ip.String()]; ok {
		mac, _ := net.ParseMAC(s)
		return mac
	}
	return nil
}

func TestEnricher(t *testing.T) {
	addr := startPTRServer(t, map[string]string{
		"5.0.0.10.in-addr.arpa.": "nas.home.",
	})
	enricher := NewEnricher(
		mapNeighbors{"10.0.0.5": "de:ad:be:ef:00:05"},
		NewReverseResolver(addr, time.Second),
		SNMPConfig{},
	)

	t.Run("fills mac and hostname", func(t *testing.T) {
		host := &Host{IP: net.ParseIP("10.0.0.5")}
		enricher.Enrich(context.Background(), host)
		assert.Equal(t, "de:ad:be:ef:00:05", host.MAC.String())
		assert.Equal(t, "nas.home", host.Hostname)
	})

	t.Run("keeps what the prober already knew", func(t *testing.T) {
		mac, _ := net.ParseMAC("00:11:22:33:44:55")
		host := &Host{IP: net.ParseIP("10.0.0.5"), MAC: mac, Hostname: "from-nmap"}
		enricher.Enrich(context.Background(), host)
		assert.Equal(t, "00:11:22:33:44:55", host.MAC.String())
		assert.Equal(t, "from-nmap", host.Hostname)
	})

	t.Run("unknown host stays bare", func(t *testing.T) {
		host := &Host{IP: net.ParseIP("10.0.0.6")}
		enricher.Enrich(context.Background(), host)
		assert.Nil(t, host.MAC)
		assert.Empty(t, host.Hostname)
	})

	t.Run("nil enricher is a no-op", func(t *testing.T) {
		var e *Enricher
		host := &Host{IP: net.ParseIP("10.0.0.5")}
		e.Enrich(context.Background(), host)
		assert.Empty(t, host.Hostname)
	})
}
