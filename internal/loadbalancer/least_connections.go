package loadbalancer

import "sync"

// LeastConnections sends each request to the target with the fewest requests
// in flight. Selection and the in-flight increment happen under one lock, so
// a burst is spread instead of piling onto the same target.
type LeastConnections struct {
	mu       sync.Mutex
	inFlight map[string]int
}

func NewLeastConnections() *LeastConnections {
	return &LeastConnections{
		inFlight: make(map[string]int),
	}
}

// Ties go to the earliest target in targets.
func (l *LeastConnections) Next(targets []string) string {
	if len(targets) == 0 {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	selected := targets[0]
	minConn := l.inFlight[selected]
	for _, target := range targets[1:] {
		if n := l.inFlight[target]; n < minConn {
			minConn = n
			selected = target
		}
	}

	l.inFlight[selected]++
	return selected
}

func (l *LeastConnections) Done(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight[target] > 1 {
		l.inFlight[target]--
	} else {
		delete(l.inFlight, target)
	}
}

// InFlight returns the number of unfinished requests sent to target.
func (l *LeastConnections) InFlight(target string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight[target]
}

func (l *LeastConnections) Name() string {
	return "least_connections"
}
