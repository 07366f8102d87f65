package publisher

import (
	"context"
	"errors"

	"fleet-signage/internal/fleet"
)

// LandmarkPublisher is any sink for landmark events.
type LandmarkPublisher interface {
	PublishLandmark(ctx context.Context, ev fleet.LandmarkEvent) error
}

// Fanout delivers every event to all sinks. One failing sink does not stop
// the others.
type Fanout []LandmarkPublisher

func (f Fanout) PublishLandmark(ctx context.Context, ev fleet.LandmarkEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishLandmark(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
