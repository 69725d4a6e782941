package promise

import (
	"context"
	"sync"
)

// Promise is a one-shot result shared by any number of waiters.
// Only the first Set or SetError takes effect.
type Promise[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value T
	err   error
	ready bool
}

func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Set fulfills the promise with v. It reports whether this call fulfilled it.
func (p *Promise[T]) Set(v T) bool {
	return p.fulfill(v, nil)
}

// SetError fulfills the promise with err. It reports whether this call fulfilled it.
func (p *Promise[T]) SetError(err error) bool {
	var zero T
	return p.fulfill(zero, err)
}

func (p *Promise[T]) fulfill(v T, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return false
	}
	p.value, p.err, p.ready = v, err, true
	close(p.done)
	return true
}

func (p *Promise[T]) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Done is closed once the promise is fulfilled.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Get returns the result of a fulfilled promise. ok is false when the promise is not ready.
func (p *Promise[T]) Get() (v T, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.ready, p.err
}

// Wait blocks until the promise is fulfilled or ctx is done, whichever
// happens first. On cancellation it returns the cause of ctx.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		v, _, err := p.Get()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	}
}
