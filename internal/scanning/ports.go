package scanning

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/anstrom/netsweep/internal/errors"
)

const (
	minPort = 1
	maxPort = 65535
)

// DefaultPorts is the port list checked when none is configured.
var DefaultPorts = []int{21, 22, 23, 25, 53, 80, 110, 443, 3306, 8080}

// ParsePorts parses a port specification such as "22,80,8000-8010" into a
// sorted list without duplicates.
func ParsePorts(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.ErrConfigInvalid("ports", spec)
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			start, end, err := parsePortRange(part)
			if err != nil {
				return nil, err
			}
			for p := start; p <= end; p++ {
				seen[p] = struct{}{}
			}
			continue
		}

		p, err := parseSinglePort(part)
		if err != nil {
			return nil, err
		}
		seen[p] = struct{}{}
	}

	if len(seen) == 0 {
		return nil, errors.ErrConfigInvalid("ports", spec)
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports, nil
}

func parsePortRange(part string) (int, int, error) {
	bounds := strings.SplitN(part, "-", 2)
	start, err := parseSinglePort(bounds[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseSinglePort(bounds[1])
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("invalid port range %s: start port must not exceed end port", part), "ports", part)
	}
	return start, end, nil
}

func parseSinglePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < minPort || p > maxPort {
		return 0, errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("invalid port %q (must be %d-%d)", s, minPort, maxPort), "ports", s)
	}
	return p, nil
}

// FormatPorts renders ports as a comma-separated list.
func FormatPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
