package entry

import (
	"sync"
	"sync/atomic"
)

// resolver runs a computation once. The first caller runs it while others
// wait on the mutex; afterwards the result is read without locking.
type resolver[T any] struct {
	done atomic.Bool
	mu   sync.Mutex
	val  T
	err  error
}

func (r *resolver[T]) get(fn func() (T, error)) (T, error) {
	if r.done.Load() {
		return r.val, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done.Load() {
		r.val, r.err = fn()
		r.done.Store(true)
	}
	return r.val, r.err
}
