package mail

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

// RateLimited throttles next to perSec sends per second with an equal burst.
// perSec <= 0 returns next unchanged.
func RateLimited(next Sender, perSec int) Sender {
	if perSec <= 0 || next == nil {
		return next
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

func (r *rateLimited) SendEmail(ctx context.Context, params Params) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.SendEmail(ctx, params)
}
