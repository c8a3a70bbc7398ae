package exam

import (
	"context"
	"time"
)

// Countdown ticks s once per interval until the session leaves Running or
// ctx is cancelled. Run it in its own goroutine right after Start; cancel ctx
// when the session is abandoned. Tick re-checks status, so a late tick after
// submission is harmless. onTick, if set, gets the remaining seconds after
// every tick that did not submit.
func Countdown(ctx context.Context, s *Session, interval time.Duration, onTick func(remaining int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, submitted := s.Tick(); submitted {
				return
			}
			if s.Status() != StatusRunning {
				return
			}
			if onTick != nil {
				onTick(s.Remaining())
			}
		}
	}
}
