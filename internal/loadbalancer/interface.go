// Package loadbalancer picks one catalog upstream per request.
package loadbalancer

type Strategy interface {
	// Next selects a target from targets, or "" when targets is empty.
	Next(targets []string) string

	// Done reports that a request sent to target has finished.
	Done(target string)

	Name() string
}
