package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-webhook-relay/core"
)

// FanOut delivers to every pipeline in order and fails if any of them
// fails. A retry re-delivers to all of them, including the ones that already
// succeeded.
type FanOut []core.DeliveryPipeline

func (f FanOut) Deliver(ctx context.Context, event core.ForwardedEvent) error {
	if len(f) == 0 {
		return notConfigured("fan-out")
	}
	var errs []error
	for index, pipeline := range f {
		if pipeline == nil {
			continue
		}
		if err := pipeline.Deliver(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("pipeline %d: %w", index, err))
		}
	}
	return errors.Join(errs...)
}

var _ core.DeliveryPipeline = FanOut(nil)
