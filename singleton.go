package bindkit

import "sync"

// singletonSlot holds the per-key singleton state. Construction runs under
// the slot's lock, so concurrent first requests serialize and exactly one
// construction happens. A construction error is latched: the key stays
// failed for the injector's lifetime rather than retrying.
type singletonSlot struct {
	mu   sync.Mutex
	done bool
	val  any
	err  error
}

func (s *singletonSlot) provide(create func() (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.done {
		s.val, s.err = create()
		s.done = true
	}
	return s.val, s.err
}
