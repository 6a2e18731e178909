package kfrp

import (
	"context"
	"fmt"
	"reflect"

	"github.com/birdayz/kfrp/kevents"
	"golang.org/x/time/rate"
)

type replayConfig struct {
	limiter *rate.Limiter
}

type ReplayOption func(*replayConfig)

// ReplayRate paces replay to at most r frames per second.
var ReplayRate = func(r rate.Limit) ReplayOption {
	return func(c *replayConfig) {
		c.limiter = rate.NewLimiter(r, 1)
	}
}

// Replay applies logged events as new frames. Sampled behaviors return the
// logged samples of each frame. Background producers (clock, debounce
// timers) are muted until Replay returns, since their outputs are part of
// the log.
func (tl *Timeline) Replay(ctx context.Context, events []kevents.ExternalEvent, opts ...ReplayOption) error {
	var cfg replayConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	for i, ev := range events {
		if cfg.limiter != nil {
			if err := cfg.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("replay event %d: %w", i, err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay event %d: %w", i, err)
		}

		if err := tl.replayOne(ev); err != nil {
			return fmt.Errorf("replay event %d: %w", i, err)
		}
	}
	return nil
}

func (tl *Timeline) replayOne(ev kevents.ExternalEvent) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	action := ev.Action
	info, ok := tl.externals[action.ID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, action.ID)
	}
	if info.action != action.Type {
		return fmt.Errorf("%w: node %q takes %s, got %s", ErrTypeMismatch, info.label, info.action, action.Type)
	}
	if action.Value != nil {
		if typ := reflect.TypeOf(action.Value); !typ.AssignableTo(info.typ) {
			return fmt.Errorf("%w: node %q holds %s, got %s", ErrTypeMismatch, info.label, info.typ, typ)
		}
	}

	tl.replaying = true
	tl.replaySamples = ev.BehaviorsSampled
	defer func() {
		tl.replaying = false
		tl.replaySamples = nil
	}()

	tl.update(action.ID, info.wrap(action.Value), false, action)
	return nil
}
