package service

import (
	"context"
	"log/slog"
	"time"
)

// Expirer drops finished tasks older than a ttl.
type Expirer interface {
	Expire(ttl time.Duration) int
}

// RunExpiry sweeps e every period until ctx is done. A non-positive ttl
// disables expiry and returns immediately.
func RunExpiry(ctx context.Context, e Expirer, ttl, period time.Duration) {
	if ttl <= 0 {
		return
	}
	if period <= 0 {
		period = ttl
	}
	slog.Info("task expiry enabled", "ttl", ttl, "period", period)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Expire(ttl)
		}
	}
}
