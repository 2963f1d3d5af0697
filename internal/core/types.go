package core

import (
	"context"
)

type Source[T any] interface {
	Stream(ctx context.Context) (<-chan T, error)
}

type Processor[In any, Out any] interface {
	Process(ctx context.Context, input In) (Out, error)
}

type FunctionalProcessor[In any, Out any] struct {
	Fn func(context.Context, In) (Out, error)
}

func (p *FunctionalProcessor[In, Out]) Process(ctx context.Context, input In) (Out, error) {
	return p.Fn(ctx, input)
}

type Sink[T any] interface {
	Write(ctx context.Context, item T) error
	Close() error
}

// SliceSource streams a fixed slice, mainly for tests and small batch runs.
type SliceSource[T any] struct {
	Items []T
}

func (s *SliceSource[T]) Stream(ctx context.Context) (<-chan T, error) {
	out := make(chan T)
	go func() {
		defer close(out)
		for _, item := range s.Items {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
