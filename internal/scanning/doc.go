// Package scanning provides the TCP port scanner netsweep runs against every
// live host a sweep finds.
//
// # Overview
//
// A PortScanner tests a fixed list of TCP ports on one host by attempting a
// full connect to each port. A completed handshake marks the port open. A
// refusal, a timeout or any other dial error marks it closed. Closed ports
// are never reported as errors; the only error Scan returns is the caller's
// context ending.
//
// # Concurrency
//
// Two limits apply at once:
//   - per host, an errgroup bounds how many ports are dialed in parallel
//   - across the process, a SocketBudget bounds how many dials are in flight
//     in total, so a sweep over many hosts cannot exhaust file descriptors
//
// # Usage
//
//	ports, err := scanning.ParsePorts("22,80,8000-8010")
//	if err != nil {
//		return err
//	}
//
//	scanner := scanning.NewPortScanner(scanning.Config{
//		Ports:   ports,
//		Timeout: 500 * time.Millisecond,
//		PerHost: 16,
//	}, scanning.NewSocketBudget(256))
//
//	open, err := scanner.Scan(ctx, net.ParseIP("192.168.1.1"))
package scanning
