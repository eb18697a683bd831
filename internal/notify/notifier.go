// Package notify delivers rendered alerts to external destinations.
package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Notifier sends one payload to one destination. kind labels the alert so
// implementations can route or tag it.
type Notifier interface {
	Name() string
	Send(ctx context.Context, destination, payload, kind string) error
}

func newLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}
