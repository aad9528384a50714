package serverctx

import (
	"context"
	"time"
)

// RunMetrics logs session/match counts every interval until
// ctx is canceled, adapted from the teacher's RunMetrics (server/
// metrics.go): same ticker-driven periodic log line, swapped from a
// single room's datagram/byte counters to the bancho registries'
// occupancy counters.
func RunMetrics(ctx context.Context, c *Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := c.Sessions.Count()
			matches := c.Matches.Count()
			if sessions > 0 || matches > 0 {
				c.Log.Infow("metrics", "sessions", sessions, "matches", matches)
			}
		}
	}
}
