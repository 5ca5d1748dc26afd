package discovery

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/anstrom/netsweep/internal/errors"
)

const (
	ipv4Bits = 32

	// DefaultMaxHosts bounds a single sweep to a /20.
	DefaultMaxHosts = 4094
)

// Range is an expanded IPv4 CIDR block.
type Range struct {
	Network *net.IPNet
	first   uint32
	count   int
}

// ExpandRange parses input and computes its usable host addresses. A bare
// address is treated as a /32. Ranges with more than maxHosts addresses are
// rejected; maxHosts <= 0 disables the cap.
func ExpandRange(input string, maxHosts int) (*Range, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.ErrInvalidRange(input, "range is empty")
	}
	if !strings.Contains(input, "/") {
		input += "/32"
	}

	ip, network, err := net.ParseCIDR(input)
	if err != nil {
		return nil, errors.ErrInvalidRange(input, "not a valid CIDR")
	}
	if ip.To4() == nil {
		return nil, errors.ErrInvalidRange(input, "only IPv4 ranges are supported")
	}

	ones, _ := network.Mask.Size()
	count := HostCount(ones)
	if maxHosts > 0 && count > maxHosts {
		return nil, errors.ErrInvalidRange(input,
			fmt.Sprintf("range has %d hosts, the limit is %d", count, maxHosts))
	}

	base := binary.BigEndian.Uint32(network.IP.To4())
	first := base
	if ones <= ipv4Bits-2 {
		// Skip the network address; the broadcast address falls outside count.
		first = base + 1
	}

	return &Range{Network: network, first: first, count: count}, nil
}

// HostCount returns the number of usable hosts in an IPv4 prefix of the
// given length.
func HostCount(ones int) int {
	switch {
	case ones >= ipv4Bits:
		return 1
	case ones == ipv4Bits-1:
		return 2
	case ones < 0:
		return 0
	default:
		return 1<<(ipv4Bits-ones) - 2
	}
}

// Count returns the number of addresses the range covers.
func (r *Range) Count() int {
	return r.count
}

// String returns the canonical CIDR form.
func (r *Range) String() string {
	return r.Network.String()
}

// Contains reports whether ip is one of the range's host addresses.
func (r *Range) Contains(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	n := binary.BigEndian.Uint32(v4)
	return n >= r.first && n < r.first+uint32(r.count)
}

// Addresses returns every host address in ascending order.
func (r *Range) Addresses() []net.IP {
	out := make([]net.IP, r.count)
	for i := 0; i < r.count; i++ {
		ip := make(net.IP, net.IPv4len)
		binary.BigEndian.PutUint32(ip, r.first+uint32(i))
		out[i] = ip
	}
	return out
}

// CompareIP orders IPv4 addresses numerically.
func CompareIP(a, b net.IP) int {
	a4, b4 := a.To4(), b.To4()
	if a4 == nil || b4 == nil {
		return strings.Compare(a.String(), b.String())
	}
	x, y := binary.BigEndian.Uint32(a4), binary.BigEndian.Uint32(b4)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}
