package discovery

import (
	"context"

	"github.com/anstrom/netsweep/internal/logging"
)

// Enricher fills in MAC and hostname for live hosts. Every step is best
// effort; failures leave the field empty.
type Enricher struct {
	neighbors NeighborTable
	resolver  *ReverseResolver
	snmp      SNMPConfig
	logger    *logging.Logger
}

// NewEnricher creates an enricher. Any of neighbors or resolver may be nil.
func NewEnricher(neighbors NeighborTable, resolver *ReverseResolver, snmp SNMPConfig) *Enricher {
	return &Enricher{
		neighbors: neighbors,
		resolver:  resolver,
		snmp:      snmp,
		logger:    logging.Default().WithComponent("discovery"),
	}
}

// Enrich updates host in place.
func (e *Enricher) Enrich(ctx context.Context, host *Host) {
	if e == nil {
		return
	}

	if len(host.MAC) == 0 && e.neighbors != nil {
		host.MAC = e.neighbors.Lookup(host.IP)
	}

	if host.Hostname == "" && e.resolver != nil {
		name, err := e.resolver.Lookup(ctx, host.IP)
		if err != nil {
			e.logger.DebugProbe("Reverse lookup failed", host.IP.String(), "error", err)
		}
		host.Hostname = name
	}

	if host.Hostname == "" && e.snmp.Enabled {
		name, err := e.snmp.SysName(ctx, host.IP)
		if err != nil {
			e.logger.DebugProbe("SNMP sysName failed", host.IP.String(), "error", err)
		}
		host.Hostname = name
	}
}
