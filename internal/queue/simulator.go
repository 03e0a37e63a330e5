package queue

import (
	"context"
	"time"
)

// Simulate advances the serving token every interval until ctx is done. It
// reproduces the demo behaviour of a queue that moves on its own.
func (q *LiveQueue) Simulate(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	q.logger.Info().Dur("interval", interval).Msg("queue simulation started")
	for {
		select {
		case <-ctx.Done():
			q.logger.Info().Msg("queue simulation stopped")
			return
		case <-ticker.C:
			q.Advance()
		}
	}
}
