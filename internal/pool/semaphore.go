package pool

import "context"

// semaphore is a counting semaphore backed by a buffered channel.
type semaphore struct {
	slots chan struct{}
}

func newSemaphore(n int) *semaphore {
	return &semaphore{slots: make(chan struct{}, n)}
}

// acquire blocks until a slot is free or ctx is done. A false return means
// no slot is held.
func (s *semaphore) acquire(ctx context.Context) bool {
	select {
	case s.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *semaphore) release() {
	<-s.slots
}

func (s *semaphore) inUse() int {
	return len(s.slots)
}

func (s *semaphore) capacity() int {
	return cap(s.slots)
}
