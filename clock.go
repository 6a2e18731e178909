package kfrp

import (
	"context"
	"time"

	"github.com/birdayz/kfrp/kevents"
)

// startClock ticks logical time from the wall clock. Elapsed time while the
// timeline is paused is dropped.
func (tl *Timeline) startClock(interval time.Duration) {
	ctx, cancel := context.WithCancel(tl.scope.Context())
	tl.stopClock = cancel

	tl.scope.Go(func(context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				elapsed := now.Sub(last)
				last = now
				tl.background(func() {
					if as[bool](tl.fetch(tl.pausedID), "paused") {
						return
					}
					tl.update(tl.clockID, Fired(elapsed), false, kevents.ExternalAction{
						Type:  kevents.FireEvent,
						ID:    tl.clockID,
						Value: elapsed,
					})
				})
			}
		}
	})
}
