package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// NetworkAddr wraps net.IPNet to implement PostgreSQL CIDR type.
type NetworkAddr struct {
	net.IPNet
}

// Scan implements sql.Scanner for PostgreSQL CIDR type.
func (n *NetworkAddr) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into NetworkAddr", value)
	}

	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return fmt.Errorf("failed to parse CIDR: %w", err)
	}
	n.IPNet = *ipnet
	return nil
}

// Value implements driver.Valuer for PostgreSQL CIDR type.
func (n NetworkAddr) Value() (driver.Value, error) {
	if len(n.IP) == 0 {
		return nil, nil
	}
	return n.IPNet.String(), nil
}

// String returns the CIDR notation string.
func (n NetworkAddr) String() string {
	if len(n.IP) == 0 {
		return ""
	}
	return n.IPNet.String()
}

// IPAddr wraps net.IP to implement PostgreSQL INET type.
type IPAddr struct {
	net.IP
}

// Scan implements sql.Scanner for PostgreSQL INET type.
func (ip *IPAddr) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into IPAddr", value)
	}

	// INET columns may carry a host mask such as 10.0.0.1/32.
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	parsed := net.ParseIP(s)
	if parsed == nil {
		return fmt.Errorf("failed to parse IP address: %s", s)
	}
	ip.IP = parsed
	return nil
}

// Value implements driver.Valuer for PostgreSQL INET type.
func (ip IPAddr) Value() (driver.Value, error) {
	if ip.IP == nil {
		return nil, nil
	}
	return ip.IP.String(), nil
}

// String returns the IP address string.
func (ip IPAddr) String() string {
	if ip.IP == nil {
		return ""
	}
	return ip.IP.String()
}

// MACAddr wraps net.HardwareAddr to implement PostgreSQL MACADDR type.
type MACAddr struct {
	net.HardwareAddr
}

// Scan implements sql.Scanner for PostgreSQL MACADDR type.
func (mac *MACAddr) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		mac.HardwareAddr = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into MACAddr", value)
	}

	hw, err := net.ParseMAC(s)
	if err != nil {
		return fmt.Errorf("failed to parse MAC address: %w", err)
	}
	mac.HardwareAddr = hw
	return nil
}

// Value implements driver.Valuer for PostgreSQL MACADDR type.
func (mac MACAddr) Value() (driver.Value, error) {
	if mac.HardwareAddr == nil {
		return nil, nil
	}
	return mac.HardwareAddr.String(), nil
}

// String returns the MAC address string.
func (mac MACAddr) String() string {
	if mac.HardwareAddr == nil {
		return ""
	}
	return mac.HardwareAddr.String()
}

// MarshalText renders the address in colon notation.
func (mac MACAddr) MarshalText() ([]byte, error) {
	return []byte(mac.String()), nil
}

// PortList is an INTEGER[] column holding TCP port numbers.
type PortList []int

// Scan implements sql.Scanner.
func (p *PortList) Scan(value interface{}) error {
	var arr pq.Int64Array
	if err := arr.Scan(value); err != nil {
		return fmt.Errorf("failed to scan port list: %w", err)
	}
	ports := make(PortList, len(arr))
	for i, v := range arr {
		ports[i] = int(v)
	}
	*p = ports
	return nil
}

// Value implements driver.Valuer. A nil list is stored as '{}'.
func (p PortList) Value() (driver.Value, error) {
	arr := make(pq.Int64Array, len(p))
	for i, v := range p {
		arr[i] = int64(v)
	}
	return arr.Value()
}

// MarshalJSON always renders a JSON array, never null.
func (p PortList) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(p))
}

// Sorted returns a sorted copy.
func (p PortList) Sorted() PortList {
	out := make(PortList, len(p))
	copy(out, p)
	sort.Ints(out)
	return out
}

// Scan statuses.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// HistoryStatusCompleted is recorded on every history entry written by a finished sweep.
const HistoryStatusCompleted = "Completed"

// Device is a host seen by at least one sweep.
type Device struct {
	ID             int64     `db:"id" json:"id"`
	IdentityKey    string    `db:"identity_key" json:"-"`
	IPAddress      IPAddr    `db:"ip_address" json:"ip"`
	MACAddress     MACAddr   `db:"mac_address" json:"mac,omitempty"`
	Hostname       *string   `db:"hostname" json:"hostname,omitempty"`
	Vendor         *string   `db:"vendor" json:"vendor,omitempty"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	OpenPorts      PortList  `db:"open_ports" json:"open_ports"`
	ResponseTimeMS *float64  `db:"response_time_ms" json:"response_time_ms,omitempty"`
	FirstSeen      time.Time `db:"first_seen" json:"first_seen"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// HistoryEntry is an immutable snapshot of one device in one sweep.
type HistoryEntry struct {
	ID        int64     `db:"id" json:"-"`
	DeviceID  int64     `db:"device_id" json:"-"`
	ScanID    uuid.UUID `db:"scan_id" json:"scan_id"`
	ScannedAt time.Time `db:"scanned_at" json:"time"`
	OpenPorts PortList  `db:"open_ports" json:"ports"`
	Status    string    `db:"status" json:"status"`
}

// Scan is one sweep run.
type Scan struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	IPRange     NetworkAddr `db:"ip_range" json:"ip_range"`
	Status      string      `db:"status" json:"status"`
	Trigger     string      `db:"trigger" json:"trigger"`
	HostsTotal  int         `db:"hosts_total" json:"hosts_total"`
	HostsAlive  int         `db:"hosts_alive" json:"hosts_alive"`
	Error       *string     `db:"error" json:"error,omitempty"`
	StartedAt   time.Time   `db:"started_at" json:"started_at"`
	CompletedAt *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
}

// Observation is what a sweep learned about one live host.
type Observation struct {
	IP        net.IP
	MAC       net.HardwareAddr
	Hostname  string
	Vendor    string
	OpenPorts []int
	RTT       time.Duration
}

// IdentityKey returns the stable key for the observed host: its MAC when
// known, otherwise its IP.
func (o *Observation) IdentityKey() string {
	if len(o.MAC) > 0 {
		return MACIdentity(o.MAC)
	}
	return IPIdentity(o.IP)
}

// MACIdentity builds the identity key for a hardware address.
func MACIdentity(mac net.HardwareAddr) string {
	return "mac:" + strings.ToLower(mac.String())
}

// IPIdentity builds the identity key for a device without a known MAC.
func IPIdentity(ip net.IP) string {
	return "ip:" + ip.String()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
