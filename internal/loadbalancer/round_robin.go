package loadbalancer

import "sync/atomic"

type RoundRobin struct {
	current atomic.Uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Next rotates over targets. The healthy set may shrink between calls, so
// the position is taken modulo the current length.
func (r *RoundRobin) Next(targets []string) string {
	if len(targets) == 0 {
		return ""
	}
	n := r.current.Add(1) - 1
	return targets[n%uint64(len(targets))]
}

func (r *RoundRobin) Done(string) {}

func (r *RoundRobin) Name() string {
	return "round_robin"
}
