// Package scheduler drives rule evaluation.
//
// A single loop wakes at every wall-clock second boundary, evaluates every
// registered rule against that instant and hands matches to the engine. The
// loop never runs task code itself. Stopping cancels the loop, signals
// running tasks and waits for them before the service reports Stopped.
package scheduler
