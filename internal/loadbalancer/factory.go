package loadbalancer

import (
	"fmt"
	"sort"
	"strings"
)

var strategies = map[string]func() Strategy{
	"round_robin":       func() Strategy { return NewRoundRobin() },
	"random":            func() Strategy { return NewRandom() },
	"least_connections": func() Strategy { return NewLeastConnections() },
}

// NewStrategy builds the named strategy. Names are case-insensitive and
// accept '-' in place of '_'; the empty name is round robin.
func NewStrategy(name string) (Strategy, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if key == "" {
		key = "round_robin"
	}

	build, ok := strategies[key]
	if !ok {
		return nil, fmt.Errorf("unknown load balancing strategy %q (want one of %s)",
			name, strings.Join(Names(), ", "))
	}
	return build(), nil
}

// Names lists the accepted strategy names.
func Names() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
