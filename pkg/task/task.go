// Package task ties the lifetime of a background goroutine to the handles
// that own it.
//
// Run starts the work and returns a Handle. Handles are cloned to share
// ownership; when the last clone is released the work's context is
// canceled. Go has no destructors, so owners call Release explicitly
// (usually deferred); a finalizer releases clones that become unreachable
// without it. Work that already happened is not rolled back.
package task

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

type shared struct {
	refs   atomic.Int64
	cancel context.CancelFunc
	done   chan struct{}
}

// Handle is one owner of a running background task.
type Handle struct {
	s    *shared
	once sync.Once
}

// Run starts work on its own goroutine.
func Run(work func(ctx context.Context)) *Handle {
	return RunContext(context.Background(), work)
}

// RunContext is like Run but derives the work's context from parent.
func RunContext(parent context.Context, work func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(parent)
	s := &shared{cancel: cancel, done: make(chan struct{})}
	s.refs.Store(1)
	go func() {
		defer close(s.done)
		work(ctx)
	}()
	return newHandle(s)
}

func newHandle(s *shared) *Handle {
	h := &Handle{s: s}
	runtime.SetFinalizer(h, (*Handle).Release)
	return h
}

// Clone returns a new owner of the same task. Cloning after the last owner
// was released panics.
func (h *Handle) Clone() *Handle {
	for {
		n := h.s.refs.Load()
		if n <= 0 {
			panic("task: Clone of released task")
		}
		if h.s.refs.CompareAndSwap(n, n+1) {
			return newHandle(h.s)
		}
	}
}

// Release drops this owner. The task is canceled when the last owner is
// released. Calling Release more than once on the same Handle is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() {
		runtime.SetFinalizer(h, nil)
		if h.s.refs.Add(-1) == 0 {
			h.s.cancel()
		}
	})
}

// Done is closed when the work function has returned.
func (h *Handle) Done() <-chan struct{} { return h.s.done }
