package kfrp

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Scope owns the goroutines of a timeline: async listeners, clocks and
// timers. Cancelling it stops them; graph state is left as is.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewScope(ctx context.Context) *Scope {
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	return &Scope{
		ctx:    ctx,
		cancel: cancel,
		group:  group,
	}
}

func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go runs fn in its own goroutine. A returned error cancels the scope.
func (s *Scope) Go(fn func(ctx context.Context) error) {
	s.group.Go(func() error {
		return fn(s.ctx)
	})
}

func (s *Scope) Cancel() {
	s.cancel()
}

// Wait blocks until all goroutines returned and reports the first error.
func (s *Scope) Wait() error {
	err := s.group.Wait()
	s.cancel()
	return err
}
