package adapters

import (
	"context"

	"golang.org/x/time/rate"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

// RateLimitedBroker wraps another BrokerAdapter and throttles submissions
// to a fixed orders-per-second budget. Submission blocks until the limiter
// grants a slot or the context expires.
type RateLimitedBroker struct {
	inner   BrokerAdapter
	limiter *rate.Limiter
}

func NewRateLimitedBroker(inner BrokerAdapter, ordersPerSec float64) *RateLimitedBroker {
	burst := int(ordersPerSec)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedBroker{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ordersPerSec), burst),
	}
}

func (b *RateLimitedBroker) Submit(ctx context.Context, instruction datamodels.OrderInstruction) (datamodels.FillResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return datamodels.FillResult{}, errors.WrapE(errors.ErrBrokerRejection, err)
	}
	return b.inner.Submit(ctx, instruction)
}

func (b *RateLimitedBroker) CurrentEquity(ctx context.Context) (float64, error) {
	return b.inner.CurrentEquity(ctx)
}
