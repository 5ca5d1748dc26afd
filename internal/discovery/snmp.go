package discovery

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// sysName.0 from MIB-II.
const oidSysName = "1.3.6.1.2.1.1.5.0"

// SNMPConfig enables sysName lookups for hosts without a PTR record.
type SNMPConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Community string        `yaml:"community" json:"-" mapstructure:"community"`
	Port      int           `yaml:"port" json:"port" mapstructure:"port"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// SysName asks the SNMP agent on ip for its system name. A GoSNMP value is
// not safe for concurrent use, so each call builds its own.
func (c SNMPConfig) SysName(ctx context.Context, ip net.IP) (string, error) {
	port := c.Port
	if port == 0 {
		port = 161
	}
	community := c.Community
	if community == "" {
		community = "public"
	}

	client := &gosnmp.GoSNMP{
		Target:    ip.String(),
		Port:      uint16(port),
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   c.Timeout,
		Retries:   0,
		Transport: "udp",
		Context:   ctx,
	}
	if client.Timeout <= 0 {
		client.Timeout = defaultDNSTimeout
	}

	if err := client.Connect(); err != nil {
		return "", err
	}
	defer func() { _ = client.Conn.Close() }()

	result, err := client.Get([]string{oidSysName})
	if err != nil {
		return "", err
	}
	if result.Error != gosnmp.NoError || len(result.Variables) == 0 {
		return "", nil
	}

	switch v := result.Variables[0].Value.(type) {
	case []byte:
		return strings.TrimSpace(string(v)), nil
	case string:
		return strings.TrimSpace(v), nil
	default:
		return "", nil
	}
}
