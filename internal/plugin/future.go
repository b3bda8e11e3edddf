package plugin

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is the eventual result of an asynchronous dispatch. It settles
// exactly once; later Resolve or Reject calls are ignored.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewFuture returns an unsettled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future already settled with value.
func Resolved(value any) *Future {
	f := NewFuture()
	f.Resolve(value)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Go runs fn on a new goroutine and settles the Future with its result.
// A panic in fn rejects the Future with an error matching ErrPluginPanic.
func Go(fn func() (any, error)) *Future {
	f := NewFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(panicError(r))
			}
		}()
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles the Future with value.
func (f *Future) Resolve(value any) {
	f.settle(value, nil)
}

// Reject settles the Future with err.
func (f *Future) Reject(err error) {
	f.settle(nil, err)
}

func (f *Future) settle(value any, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
	})
}

// Done returns a channel closed once the Future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the Future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settleAll returns a Future resolving to the aggregate of results, with
// every *Future element replaced by its settled value. The first rejection
// rejects the whole.
func settleAll(ctx context.Context, results []any) *Future {
	pending := false
	for _, r := range results {
		if f, ok := r.(*Future); ok && f != nil {
			pending = true
			break
		}
	}
	if !pending {
		return Resolved(aggregate(results))
	}

	return Go(func() (any, error) {
		values := make([]any, len(results))
		g, gctx := errgroup.WithContext(ctx)
		for i, r := range results {
			f, ok := r.(*Future)
			if !ok || f == nil {
				values[i] = r
				continue
			}
			g.Go(func() error {
				v, err := f.Await(gctx)
				values[i] = v
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return aggregate(values), nil
	})
}
