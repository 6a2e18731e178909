package main

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/birdayz/kfrp"
	"github.com/birdayz/kfrp/kevents"
	"github.com/go-logr/logr"
)

// rover is the demo program: a vehicle pushed by thrust, wind gusts and
// kicks. Construction order fixes the node ids, so a trace recorded from one
// rover replays into a fresh one.
type rover struct {
	tl     *kfrp.Timeline
	kick   kfrp.Emitter[float64]
	thrust kfrp.Var[float64]
	kicks  kfrp.Signal[int]
	speed  kfrp.Signal[float64]

	maxSpeed float64
}

func newRover(tl *kfrp.Timeline, gust func() float64, log logr.Logger) *rover {
	kick := kfrp.ExternalEvent[float64](tl, "kick")
	thrust := kfrp.ExternalSignal(tl, 0.0, "thrust")
	kicks := kfrp.Fold(kick.Event, 0, func(n int, _ float64) int {
		return n + 1
	})

	acceleration := kfrp.AddBehaviors(
		kfrp.Continuous(tl, func(time.Duration) float64 {
			return thrust.Value()
		}),
		kfrp.Sampled(tl, gust),
		kfrp.Impulses(kick.Event),
	)
	velocity := kfrp.Integrate(acceleration)

	// Recomputed on every tick and kick, so the gust is sampled inside the
	// frame and ends up in the trace.
	speed := kfrp.Combine2(tl.Time(), kicks, func(now time.Duration, _ int) float64 {
		return velocity.At(now)
	})

	r := &rover{tl: tl, kick: kick, thrust: thrust, kicks: kicks, speed: speed}
	speed.Observe(func(v float64) {
		r.maxSpeed = max(r.maxSpeed, math.Abs(v))
		log.V(1).Info("speed", "frame", tl.Frame(), "now", tl.Now(), "value", v)
	})
	return r
}

// step applies one random input.
func (r *rover) step(rng *rand.Rand) {
	switch p := rng.Float64(); {
	case p < 0.6:
		r.tl.Tick(100 * time.Millisecond)
	case p < 0.85:
		r.thrust.Set(math.Round((rng.Float64()*2-1)*100) / 100)
	default:
		r.kick.Send(math.Round((rng.Float64()*4-2)*100) / 100)
	}
}

// replayRover replays events into a new rover. Gusts come from the trace.
func replayRover(ctx context.Context, events []kevents.ExternalEvent, log logr.Logger, opts []kfrp.ReplayOption, tlOpts ...kfrp.Option) (*rover, error) {
	tl := kfrp.New(nil, append([]kfrp.Option{kfrp.WithLogr(log)}, tlOpts...)...)
	r := newRover(tl, func() float64 { return 0 }, log)
	if err := tl.Replay(ctx, events, opts...); err != nil {
		_ = tl.Close()
		return nil, err
	}
	return r, tl.Close()
}
