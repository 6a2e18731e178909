// Package kfrp is a push-pull functional reactive runtime.
//
// A Timeline owns a graph of nodes. Inputs are external events (Emitter)
// and external signals (Var); everything else is derived with combinators
// such as Map, Fold, Combine2 or Merged. Each external update is one frame:
// the update is propagated through the graph in height order, so every node
// sees exactly one consistent set of parent values per frame.
//
// Nodes nobody observes are only marked dirty and recomputed when read.
// Observed nodes (listeners, folds) are recomputed eagerly.
//
// Behaviors are functions of logical time. Time advances with Tick or with a
// wall clock (WithClock). Integrate integrates a behavior, exactly for
// polynomials and with Simpson's rule otherwise.
//
// With WithTimeTravel, a snapshot is kept per frame and the TimeTravel
// debugger can restore earlier frames. With WithEventLogger every frame is
// logged as a kevents.ExternalEvent and can be replayed with Replay.
package kfrp
