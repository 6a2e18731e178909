package kfrp

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/birdayz/kfrp/kgraph"
)

// ErrPropagating is returned when the debugger is used from a listener
// while a frame propagates.
var ErrPropagating = errors.New("cannot travel in time during propagation")

type frameSnapshot struct {
	frame  int64
	values kgraph.Snapshot[any]
	dirty  map[kgraph.NodeID]struct{}
}

// TimeTravel restores the timeline to earlier frames. A snapshot of all node
// values is kept for each of the most recent frames.
type TimeTravel struct {
	tl *Timeline

	snapshots map[int64]*frameSnapshot
	frames    []int64 // ascending
}

func (tt *TimeTravel) check() error {
	if !tt.tl.cfg.timeTravel {
		return ErrTimeTravelDisabled
	}
	if tt.tl.propagating {
		return ErrPropagating
	}
	return nil
}

// Frame returns the current frame of the timeline.
func (tt *TimeTravel) Frame() int64 {
	return tt.tl.Frame()
}

// Frames returns the retained frames, ascending.
func (tt *TimeTravel) Frames() []int64 {
	tt.tl.mu.Lock()
	defer tt.tl.mu.Unlock()
	return slices.Clone(tt.frames)
}

// Persist snapshots the current frame. Frames are persisted automatically
// after each external update.
func (tt *TimeTravel) Persist() error {
	tt.tl.mu.Lock()
	defer tt.tl.mu.Unlock()
	if err := tt.check(); err != nil {
		return err
	}
	tt.persist()
	return nil
}

// Rollback restores the previous frame.
func (tt *TimeTravel) Rollback() error {
	tt.tl.mu.Lock()
	defer tt.tl.mu.Unlock()
	return tt.reset(tt.tl.frame - 1)
}

// Next restores the frame after the current one, if it was produced before
// a rollback and no new frame replaced it.
func (tt *TimeTravel) Next() error {
	tt.tl.mu.Lock()
	defer tt.tl.mu.Unlock()
	return tt.reset(tt.tl.frame + 1)
}

// Reset restores all nodes to their values at frame. It does not log and
// does not persist. The next external update continues from frame and
// discards the snapshots after it.
func (tt *TimeTravel) Reset(frame int64) error {
	tt.tl.mu.Lock()
	defer tt.tl.mu.Unlock()
	return tt.reset(frame)
}

func (tt *TimeTravel) persist() {
	tl := tt.tl
	snap := &frameSnapshot{
		frame:  tl.frame,
		values: tl.graph.Snapshot(),
		dirty:  maps.Clone(tl.dirtySet),
	}
	if _, ok := tt.snapshots[tl.frame]; !ok {
		i := sort.Search(len(tt.frames), func(i int) bool { return tt.frames[i] >= tl.frame })
		tt.frames = slices.Insert(tt.frames, i, tl.frame)
	}
	tt.snapshots[tl.frame] = snap

	evicted := false
	for len(tt.frames) > tl.cfg.snapshotRetention && len(tt.frames) > 1 {
		delete(tt.snapshots, tt.frames[0])
		tt.frames = tt.frames[1:]
		evicted = true
	}
	if evicted {
		oldest := tt.frames[0]
		for _, hook := range tl.compactHooks {
			hook(oldest)
		}
		if tl.cfg.debug {
			tl.log.V(1).Info("evicted snapshots", "oldest", oldest)
		}
	}
	tl.metrics.snapshotsRetained.Set(float64(len(tt.frames)))
}

// beginFrame runs before an external frame. It records the starting state
// once, and drops the frames after the current one if the timeline was
// rolled back.
func (tt *TimeTravel) beginFrame() {
	tl := tt.tl
	if !tl.cfg.timeTravel {
		return
	}
	if _, ok := tt.snapshots[tl.frame]; !ok {
		tt.persist()
	}
	if last := tt.frames[len(tt.frames)-1]; last > tl.frame {
		i := sort.Search(len(tt.frames), func(i int) bool { return tt.frames[i] > tl.frame })
		for _, f := range tt.frames[i:] {
			delete(tt.snapshots, f)
		}
		tt.frames = tt.frames[:i]
		for _, hook := range tl.truncateHooks {
			hook(tl.frame)
		}
		tl.metrics.snapshotsRetained.Set(float64(len(tt.frames)))
		if tl.cfg.debug {
			tl.log.V(1).Info("branched", "frame", tl.frame, "dropped", last-tl.frame)
		}
	}
}

func (tt *TimeTravel) reset(frame int64) error {
	if err := tt.check(); err != nil {
		return err
	}
	tl := tt.tl
	snap, ok := tt.snapshots[frame]
	if !ok {
		return fmt.Errorf("%w: %d", ErrFrameNotRetained, frame)
	}

	tl.resetting = true
	defer func() { tl.resetting = false }()

	ids := tl.graph.NodeIDs()
	for _, id := range ids {
		if id == tl.pausedID {
			continue
		}
		n := tl.node(id)
		if v, ok := snap.values.Value(id); ok {
			tl.graph.SetValue(id, v)
			_, dirty := snap.dirty[id]
			tl.setDirty(n, dirty)
		} else if n.recompute != nil {
			tl.setDirty(n, true)
		}
	}
	tl.frame = frame

	tl.nextFrame = nil
	clear(tl.nextFrameSet)
	for _, id := range ids {
		n := tl.node(id)
		if n.onRollback != nil {
			n.onRollback(frame)
		}
		tl.scheduleNextFrame(n)
	}

	slices.SortStableFunc(ids, func(a, b kgraph.NodeID) int {
		return tl.node(a).height - tl.node(b).height
	})
	for _, id := range ids {
		n := tl.node(id)
		if id == tl.pausedID || len(n.listeners) == 0 {
			continue
		}
		v := tl.fetch(id)
		for _, l := range slices.Clone(n.listeners) {
			l.fn(v)
		}
	}

	if tl.cfg.debug {
		tl.log.V(1).Info("reset", "frame", frame, "dirty", len(tl.dirtySet))
	}
	return nil
}
