package kfrp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/birdayz/kfrp/kevents"
	"github.com/birdayz/kfrp/kgraph"
	"github.com/birdayz/kfrp/kserde"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

// externalInfo describes an input node for logging and replay.
type externalInfo struct {
	label  string
	typ    reflect.Type
	action kevents.ActionType
	kind   string // registry kind, empty if typ has no codec
	wrap   func(any) any
}

// ExternalNode describes an input of the timeline.
type ExternalNode struct {
	ID     kgraph.NodeID
	Label  string
	Type   reflect.Type
	Action kevents.ActionType
	Kind   string
}

type asyncCall struct {
	fn    func(any)
	value any
}

// Timeline owns a dependency graph and propagates external updates through
// it, one frame per update.
type Timeline struct {
	id      string
	cfg     config
	scope   *Scope
	log     logr.Logger
	metrics *metrics
	tracer  trace.Tracer

	mu    reentrantMutex
	graph kgraph.Graph[*node, any]

	nextID       kgraph.NodeID
	nextBehavior kevents.BehaviorID

	frame int64
	// seq counts propagations, external and internal.
	seq uint64

	propagating bool
	// external is set while the propagation of an external frame runs.
	external  bool
	resetting bool
	replaying bool
	closed    bool

	queue    *heightQueue
	pending  []func()
	async    []asyncCall
	dirtySet map[kgraph.NodeID]struct{}

	nextFrame    []*node
	nextFrameSet map[kgraph.NodeID]struct{}

	externals        map[kgraph.NodeID]externalInfo
	behaviorsSampled map[kevents.BehaviorID]any
	replaySamples    map[kevents.BehaviorID]any

	truncateHooks []func(frame int64)
	compactHooks  []func(frame int64)

	timeTravel *TimeTravel
	eventLog   kevents.Logger
	errs       error

	clockID   kgraph.NodeID
	nowID     kgraph.NodeID
	pausedID  kgraph.NodeID
	stopClock context.CancelFunc
}

// New creates a timeline whose background work runs in scope. A nil scope
// uses a background context.
func New(scope *Scope, opts ...Option) *Timeline {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if scope == nil {
		scope = NewScope(context.Background())
	}
	if cfg.registry == nil {
		cfg.registry = kserde.NewDefaultRegistry()
	}

	id := uuid.NewString()
	tl := &Timeline{
		id:               id,
		cfg:              cfg,
		scope:            scope,
		log:              cfg.log.WithName("kfrp").WithValues("timeline", id),
		metrics:          newMetrics(cfg.registerer, id),
		tracer:           cfg.tracerProvider.Tracer("github.com/birdayz/kfrp"),
		queue:            newHeightQueue(),
		dirtySet:         make(map[kgraph.NodeID]struct{}),
		nextFrameSet:     make(map[kgraph.NodeID]struct{}),
		externals:        make(map[kgraph.NodeID]externalInfo),
		behaviorsSampled: make(map[kevents.BehaviorID]any),
		eventLog:         cfg.eventLogger,
	}

	graphOpts := []kgraph.Option{kgraph.WithCycleCheck(cfg.cycleDetection)}
	if cfg.timeTravel {
		tl.graph = kgraph.NewPersistent[*node, any](graphOpts...)
	} else {
		tl.graph = kgraph.NewMutable[*node, any](graphOpts...)
	}
	tl.timeTravel = &TimeTravel{
		tl:        tl,
		snapshots: make(map[int64]*frameSnapshot),
	}

	clock := ExternalEvent[time.Duration](tl, "clock")
	tl.clockID = clock.id
	tl.nowID = Sum(clock.Event).id

	tl.pausedID = tl.allocID()
	tl.createNode(tl.pausedID, "paused", false, nil, nil)

	if cfg.clockInterval > 0 {
		tl.startClock(cfg.clockInterval)
	}

	tl.log.V(1).Info("timeline created",
		"timeTravel", cfg.timeTravel,
		"lazy", cfg.lazy,
		"clockInterval", cfg.clockInterval)
	return tl
}

// ID is a random identifier of the timeline, used as metrics label.
func (tl *Timeline) ID() string {
	return tl.id
}

// Frame returns the current external frame.
func (tl *Timeline) Frame() int64 {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.frame
}

// Now returns the logical time.
func (tl *Timeline) Now() time.Duration {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return as[time.Duration](tl.fetch(tl.nowID), "now")
}

// Time is the logical time as a signal.
func (tl *Timeline) Time() Signal[time.Duration] {
	return Signal[time.Duration]{tl: tl, id: tl.nowID}
}

// Tick advances logical time by d. Each tick is an external frame.
func (tl *Timeline) Tick(d time.Duration) {
	tl.update(tl.clockID, Fired(d), false, kevents.ExternalAction{Type: kevents.FireEvent, ID: tl.clockID, Value: d})
}

// Pause stops the wall clock from advancing logical time. Manual ticks are
// still applied.
func (tl *Timeline) Pause() {
	tl.update(tl.pausedID, true, true, kevents.ExternalAction{})
}

func (tl *Timeline) Resume() {
	tl.update(tl.pausedID, false, true, kevents.ExternalAction{})
}

func (tl *Timeline) Paused() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return as[bool](tl.fetch(tl.pausedID), "paused")
}

// TimeTravel returns the debugger. Its methods fail with
// ErrTimeTravelDisabled unless the timeline was created WithTimeTravel.
func (tl *Timeline) TimeTravel() *TimeTravel {
	return tl.timeTravel
}

// Registry returns the codecs for external values.
func (tl *Timeline) Registry() *kserde.Registry {
	return tl.cfg.registry
}

// ExternalNodes lists the inputs in creation order.
func (tl *Timeline) ExternalNodes() []ExternalNode {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	ids := slices.Sorted(maps.Keys(tl.externals))
	out := make([]ExternalNode, 0, len(ids))
	for _, id := range ids {
		info := tl.externals[id]
		out = append(out, ExternalNode{
			ID:     id,
			Label:  info.label,
			Type:   info.typ,
			Action: info.action,
			Kind:   info.kind,
		})
	}
	return out
}

// Err returns the event log errors recorded so far.
func (tl *Timeline) Err() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.errs
}

// Close stops the clock and closes the event logger. Updates after Close
// panic with ErrClosed.
func (tl *Timeline) Close() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.closed {
		return tl.errs
	}
	tl.closed = true
	if tl.stopClock != nil {
		tl.stopClock()
	}
	if err := tl.eventLog.Close(); err != nil {
		tl.errs = multierr.Append(tl.errs, fmt.Errorf("close event log: %w", err))
	}
	return tl.errs
}

func (tl *Timeline) allocID() kgraph.NodeID {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.nextID++
	return tl.nextID
}

func (tl *Timeline) node(id kgraph.NodeID) *node {
	n, ok := tl.graph.Node(id)
	if !ok {
		panic(fmt.Errorf("%w: %d", kgraph.ErrNodeNotFound, id))
	}
	return n
}

func (tl *Timeline) value(id kgraph.NodeID) any {
	v, _ := tl.graph.Value(id)
	return v
}

func (tl *Timeline) setDirty(n *node, dirty bool) {
	n.dirty = dirty
	if dirty {
		tl.dirtySet[n.id] = struct{}{}
	} else {
		delete(tl.dirtySet, n.id)
	}
}

func (tl *Timeline) insert(n *node, value any) {
	if err := tl.graph.AddNode(n.id, n); err != nil {
		panic(err)
	}
	tl.graph.SetValue(n.id, value)
}

// connect adds the edge parent -> child once and keeps heights ordered.
func (tl *Timeline) connect(parent, child kgraph.NodeID) {
	c := tl.node(child)
	if _, ok := c.parents[parent]; ok {
		return
	}
	if err := tl.graph.AddChild(parent, child); err != nil {
		panic(err)
	}
	c.parents[parent] = struct{}{}

	if p := tl.node(parent); p.height >= c.height {
		tl.raise(c, p.height+1)
	}
}

func (tl *Timeline) raise(n *node, height int) {
	n.height = height
	for _, id := range tl.graph.Children(n.id) {
		if c := tl.node(id); c.height <= height {
			tl.raise(c, height+1)
		}
	}
}

// rewire connects parent to child after construction. Flatten and Switch
// use it when the inner node changes.
func (tl *Timeline) rewire(parent, child kgraph.NodeID) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.connect(parent, child)
}

// createNode adds a root node.
func (tl *Timeline) createNode(id kgraph.NodeID, label string, initial any, onNextFrame func(), onRollback func(int64)) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.insert(&node{
		id:          id,
		label:       label,
		onNextFrame: onNextFrame,
		onRollback:  onRollback,
		parents:     make(map[kgraph.NodeID]struct{}),
	}, initial)
}

// createMappedNode adds a node derived from parent. Unless initial is given,
// f runs in a tracked scope and every signal it reads becomes a parent too.
func (tl *Timeline) createMappedNode(id kgraph.NodeID, label string, parent kgraph.NodeID, f func(sc *SampleScope, v any) any, initial *any, onNextFrame func()) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	n := &node{
		id:          id,
		label:       label,
		onNextFrame: onNextFrame,
		parents:     make(map[kgraph.NodeID]struct{}),
		recompute: func() any {
			return f(tl.untracked(), tl.fetch(parent))
		},
	}

	// Inserted before f runs: flatten plumbing wires edges to id from f.
	tl.insert(n, nil)
	tl.connect(parent, id)

	if initial != nil {
		tl.graph.SetValue(id, *initial)
		return
	}
	sc := tl.tracked()
	tl.graph.SetValue(id, f(sc, tl.fetch(parent)))
	for _, r := range sc.reads {
		tl.connect(r, id)
	}
}

// createTrackedNode adds a node whose parents are exactly the signals f
// reads on construction.
func (tl *Timeline) createTrackedNode(id kgraph.NodeID, label string, f func(sc *SampleScope) any) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	n := &node{
		id:      id,
		label:   label,
		parents: make(map[kgraph.NodeID]struct{}),
		recompute: func() any {
			return f(tl.untracked())
		},
	}

	sc := tl.tracked()
	value := f(sc)

	tl.insert(n, value)
	for _, r := range sc.reads {
		tl.connect(r, id)
	}
}

func (tl *Timeline) createCombinedNode(id kgraph.NodeID, label string, parents []kgraph.NodeID, combine func([]any) any, onNextFrame func()) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	read := func() []any {
		values := make([]any, len(parents))
		for i, p := range parents {
			values[i] = tl.fetch(p)
		}
		return values
	}

	n := &node{
		id:          id,
		label:       label,
		onNextFrame: onNextFrame,
		parents:     make(map[kgraph.NodeID]struct{}),
		recompute: func() any {
			return combine(read())
		},
	}

	tl.insert(n, combine(read()))
	for _, p := range parents {
		tl.connect(p, id)
	}
}

// createFoldNode adds a stateful node that applies reducer whenever event
// fires. With time travel the fired payloads are kept per frame so a
// rollback can rebuild the state.
func (tl *Timeline) createFoldNode(id kgraph.NodeID, label string, initial any, event kgraph.NodeID, reducer func(acc, v any) any) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	history := &foldHistory{base: initial}
	n := &node{
		id:       id,
		label:    label,
		stateful: true,
		parents:  make(map[kgraph.NodeID]struct{}),
	}

	// The fold may be recomputed more than once per propagation (pulled by
	// a child and then processed). All of them start from the same base.
	var (
		stamp uint64
		base  any
	)
	n.recompute = func() any {
		if stamp != tl.seq {
			stamp = tl.seq
			base = tl.value(id)
		}
		v, fired := firedValue(tl.fetch(event))
		if !fired {
			return base
		}
		if tl.cfg.timeTravel {
			history.record(tl.producingFrame(), v)
		}
		return reducer(base, v)
	}

	if tl.cfg.timeTravel {
		n.onRollback = func(frame int64) {
			tl.graph.SetValue(id, history.replay(frame, reducer))
			tl.setDirty(n, false)
			stamp = 0
		}
		tl.truncateHooks = append(tl.truncateHooks, history.truncate)
		tl.compactHooks = append(tl.compactHooks, func(frame int64) {
			history.compact(frame, reducer)
		})
	}

	tl.insert(n, initial)
	tl.connect(event, id)
}

// fetch returns the value of id, recomputing it if it is dirty.
func (tl *Timeline) fetch(id kgraph.NodeID) any {
	n := tl.node(id)
	if n.dirty {
		return tl.recompute(n)
	}
	return tl.value(id)
}

func (tl *Timeline) recompute(n *node) any {
	if tl.cfg.debug {
		tl.log.V(1).Info("recompute", "node", n.String(), "id", n.id, "frame", tl.frame)
	}
	v := n.recompute()
	tl.graph.SetValue(n.id, v)
	tl.setDirty(n, false)
	tl.scheduleNextFrame(n)
	tl.metrics.recomputes.Inc()
	return v
}

func (tl *Timeline) scheduleNextFrame(n *node) {
	if n.onNextFrame == nil {
		return
	}
	if _, ok := tl.nextFrameSet[n.id]; ok {
		return
	}
	tl.nextFrameSet[n.id] = struct{}{}
	tl.nextFrame = append(tl.nextFrame, n)
}

func (tl *Timeline) runNextFrame() {
	scheduled := tl.nextFrame
	tl.nextFrame = nil
	clear(tl.nextFrameSet)
	for _, n := range scheduled {
		n.onNextFrame()
	}
}

// resetEvent returns the onNextFrame callback of an event node. It puts the
// node back to its empty state without propagating.
func (tl *Timeline) resetEvent(id kgraph.NodeID, none any) func() {
	return func() {
		tl.graph.SetValue(id, none)
		tl.setDirty(tl.node(id), false)
	}
}

func (tl *Timeline) enqueueChildren(n *node) {
	for _, id := range tl.graph.Children(n.id) {
		c := tl.node(id)
		if tl.queue.insert(id, c.height) {
			tl.setDirty(c, true)
		}
	}
}

func (tl *Timeline) notify(n *node, v any) {
	for _, l := range slices.Clone(n.listeners) {
		l.fn(v)
	}
	for _, l := range n.asyncListeners {
		tl.async = append(tl.async, asyncCall{fn: l.fn, value: v})
	}
}

// process handles one queued node. Unobserved nodes stay dirty in lazy
// mode; their children are still visited so observed descendants can pull.
func (tl *Timeline) process(id kgraph.NodeID) {
	n := tl.node(id)

	if tl.cfg.lazy && !n.observed() {
		if tl.cfg.debug {
			tl.log.V(1).Info("mark dirty", "node", n.String(), "id", id, "height", n.height)
		}
		tl.metrics.dirtyMarks.Inc()
		tl.scheduleNextFrame(n)
		tl.enqueueChildren(n)
		return
	}

	// Not dirty means a child already pulled it during this propagation.
	v := tl.value(id)
	if n.dirty {
		v = tl.recompute(n)
	}
	tl.notify(n, v)
	tl.enqueueChildren(n)
}

// assign stores a new value in a root node and queues its children.
func (tl *Timeline) assign(id kgraph.NodeID, value any) {
	n := tl.node(id)
	tl.graph.SetValue(id, value)
	tl.setDirty(n, false)
	tl.notify(n, value)
	tl.scheduleNextFrame(n)
	tl.enqueueChildren(n)
}

// producingFrame is the frame whose values are being computed.
func (tl *Timeline) producingFrame() int64 {
	if tl.external {
		return tl.frame + 1
	}
	return tl.frame
}

func (tl *Timeline) propagate(fn func()) {
	tl.seq++
	tl.propagating = true
	defer func() {
		tl.propagating = false
		if r := recover(); r != nil {
			tl.queue.reset()
			tl.external = false
			panic(r)
		}
	}()

	fn()
	tl.queue.drain(tl.process)
}

// update sets the value of a root node. External updates run a frame;
// when one is issued during propagation it runs after the current frame.
// Internal updates join a running propagation.
func (tl *Timeline) update(id kgraph.NodeID, value any, internal bool, action kevents.ExternalAction) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.closed {
		panic(ErrClosed)
	}

	if tl.propagating {
		if internal {
			tl.assign(id, value)
			return
		}
		tl.pending = append(tl.pending, func() {
			tl.update(id, value, false, action)
		})
		return
	}

	if internal {
		tl.propagate(func() {
			tl.assign(id, value)
		})
		tl.flushAsync()
		return
	}

	tl.runFrame(id, value, action)

	for len(tl.pending) > 0 {
		next := tl.pending[0]
		tl.pending = tl.pending[1:]
		next()
	}
}

func (tl *Timeline) runFrame(id kgraph.NodeID, value any, action kevents.ExternalAction) {
	ctx, span := tl.tracer.Start(tl.scope.Context(), "kfrp.frame", trace.WithAttributes(
		attribute.Int64("frame", tl.frame+1),
		attribute.Int64("node", int64(id)),
		attribute.String("action", string(action.Type)),
	))
	defer span.End()
	start := time.Now()

	tl.timeTravel.beginFrame()
	tl.runNextFrame()
	clear(tl.behaviorsSampled)

	tl.external = true
	tl.propagate(func() {
		tl.assign(id, value)
	})
	tl.external = false
	tl.frame++

	tl.metrics.frames.Inc()
	tl.metrics.propagation.Observe(time.Since(start).Seconds())

	event := kevents.ExternalEvent{
		BehaviorsSampled: maps.Clone(tl.behaviorsSampled),
		Action:           action,
	}
	if err := tl.eventLog.Log(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "log external event")
		if errors.Is(err, kserde.ErrNoCodec) {
			panic(fmt.Errorf("log frame %d: %w", tl.frame, err))
		}
		tl.metrics.logErrors.Inc()
		tl.errs = multierr.Append(tl.errs, fmt.Errorf("log frame %d: %w", tl.frame, err))
		tl.log.Error(err, "failed to log external event", "frame", tl.frame)
	}

	if tl.cfg.timeTravel {
		tl.timeTravel.persist()
	}

	if tl.cfg.debug {
		tl.log.V(1).Info("frame done", "frame", tl.frame, "node", id, "dirty", len(tl.dirtySet))
	}
	tl.flushAsync()
}

func (tl *Timeline) flushAsync() {
	calls := tl.async
	tl.async = nil
	for _, c := range calls {
		tl.scope.Go(func(context.Context) error {
			c.fn(c.value)
			return nil
		})
	}
}

// addListener registers fn on id and brings a dirty node up to date.
func (tl *Timeline) addListener(id kgraph.NodeID, fn func(any), async bool) func() {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	n := tl.node(id)
	l := &listener{fn: fn}
	if async {
		n.asyncListeners = append(n.asyncListeners, l)
	} else {
		n.listeners = append(n.listeners, l)
	}
	if n.dirty {
		tl.recompute(n)
	}

	return func() {
		tl.mu.Lock()
		defer tl.mu.Unlock()
		n.removeListener(l)
	}
}

func (tl *Timeline) registerExternal(id kgraph.NodeID, label string, typ reflect.Type, action kevents.ActionType, wrap func(any) any) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	kind, _ := tl.cfg.registry.KindOf(typ)
	tl.externals[id] = externalInfo{
		label:  label,
		typ:    typ,
		action: action,
		kind:   kind,
		wrap:   wrap,
	}
}

// sampleBehavior returns the value of a non-deterministic behavior. The
// first sample in a frame is cached and logged with the frame; replay
// serves the logged value instead.
func (tl *Timeline) sampleBehavior(id kevents.BehaviorID, sampler func() any) any {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if v, ok := tl.behaviorsSampled[id]; ok {
		return v
	}
	v, ok := tl.replaySamples[id]
	if !ok {
		v = sampler()
	}
	tl.behaviorsSampled[id] = v
	return v
}

func (tl *Timeline) allocBehaviorID() kevents.BehaviorID {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.nextBehavior++
	return tl.nextBehavior
}

func (tl *Timeline) isReplaying() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.replaying
}
