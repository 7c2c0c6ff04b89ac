package usecases

import (
	"context"
	"errors"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
)

// FanoutPublisher delivers every event to each of its publishers. All of
// them are attempted; failures are joined.
type FanoutPublisher []ports.EventPublisher

var _ ports.EventPublisher = FanoutPublisher(nil)

// NewFanoutPublisher drops nil entries. It returns nil when nothing is
// left so callers can skip wiring events entirely.
func NewFanoutPublisher(pubs ...ports.EventPublisher) ports.EventPublisher {
	var out FanoutPublisher
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f FanoutPublisher) PublishTripEvent(ctx context.Context, ev *domain.TripEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishTripEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f FanoutPublisher) PublishCatalogUpdated(ctx context.Context, count int) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishCatalogUpdated(ctx, count); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
