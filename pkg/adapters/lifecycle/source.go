// Package lifecycle exposes storage change feeds as lifecycle sources so
// they can be consumed next to the other supervised event streams.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/stickies/pkg/kv"
)

type storageSource struct {
	events <-chan kv.Event
	out    chan lifecycle.Event
}

// NewSource wraps the channel returned by kv.Watchable.Watch.
// Events() is closed once the input closes or ctx given to Start is done.
func NewSource(events <-chan kv.Event) lifecycle.Source {
	return &storageSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *storageSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *storageSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
