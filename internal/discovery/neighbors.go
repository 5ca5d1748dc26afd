package discovery

import (
	"bufio"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultARPPath is the Linux kernel neighbor table.
const DefaultARPPath = "/proc/net/arp"

const (
	arpFlagComplete = "0x2"
	arpCacheTTL     = 2 * time.Second
)

// NeighborTable resolves IPv4 addresses to link-layer addresses.
type NeighborTable interface {
	Lookup(ip net.IP) net.HardwareAddr
}

// ARPTable reads the kernel ARP cache. Reads are cached briefly so a sweep
// does not reopen the file for every host.
type ARPTable struct {
	path string

	mu       sync.Mutex
	entries  map[string]net.HardwareAddr
	loadedAt time.Time
}

// NewARPTable creates a table backed by path.
func NewARPTable(path string) *ARPTable {
	if path == "" {
		path = DefaultARPPath
	}
	return &ARPTable{path: path}
}

// Lookup implements NeighborTable. Missing or unreadable tables yield nil.
func (t *ARPTable) Lookup(ip net.IP) net.HardwareAddr {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries == nil || time.Since(t.loadedAt) > arpCacheTTL {
		f, err := os.Open(t.path)
		if err != nil {
			return nil
		}
		t.entries = ParseARPTable(f)
		_ = f.Close()
		t.loadedAt = time.Now()
	}
	return t.entries[ip.String()]
}

// ParseARPTable parses /proc/net/arp content, keeping complete entries only.
func ParseARPTable(r io.Reader) map[string]net.HardwareAddr {
	table := make(map[string]net.HardwareAddr)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// IP address, HW type, Flags, HW address, Mask, Device
		if len(fields) < 6 || fields[2] != arpFlagComplete {
			continue
		}
		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}
		mac, err := net.ParseMAC(fields[3])
		if err != nil || isZeroMAC(mac) {
			continue
		}
		table[ip.String()] = mac
	}
	return table
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}
