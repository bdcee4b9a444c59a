// Package termination implements the Termination Monitor of spec §4.8: a
// set of independent checks run against the Results log after every
// iteration, each producing a store.TerminationReason when triggered.
// Grounded on original_source's TaskCheckConstraintTolerance.cpp and
// TaskCheckObjectiveStagnation.cpp, each of which is one independent
// check object run in sequence by the task pipeline; here they are plain
// functions run by internal/pipeline in the same order.
package termination

import (
	"math"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/store"
)

// Check is one termination test. It reports whether it triggered and, if
// so, the reason to record.
type Check func(e *env.Environment) (triggered bool, reason store.TerminationReason)

// AbsoluteGap triggers once BestPrimal - BestDual <= AbsoluteGapTolerance.
func AbsoluteGap(e *env.Environment) (bool, store.TerminationReason) {
	if !e.Results.BestPrimal.Found {
		return false, store.NotTerminated
	}
	abs, _ := e.Results.Gap(e.Settings.Termination.RelativeGapDelta)
	if abs <= e.Settings.Termination.AbsoluteGapTolerance {
		return true, store.ReasonAbsoluteGap
	}
	return false, store.NotTerminated
}

// RelativeGap triggers once the relative objective gap falls within
// tolerance.
func RelativeGap(e *env.Environment) (bool, store.TerminationReason) {
	if !e.Results.BestPrimal.Found {
		return false, store.NotTerminated
	}
	_, rel := e.Results.Gap(e.Settings.Termination.RelativeGapDelta)
	if rel <= e.Settings.Termination.RelativeGapTolerance {
		return true, store.ReasonRelativeGap
	}
	return false, store.NotTerminated
}

// ConstraintTolerance triggers when the current iteration's worst
// nonlinear-constraint deviation is within tolerance and the iteration was
// a full MIP solve (spec: this check "only applies to iterations that
// solved a fully-discrete MIP", mirroring TaskCheckConstraintTolerance.cpp
// skipping fixed-integer repair iterations).
func ConstraintTolerance(e *env.Environment) (bool, store.TerminationReason) {
	cur := e.Results.Current()
	if cur == nil || !cur.IsMIP() {
		return false, store.NotTerminated
	}
	if cur.MaxDeviation.Value <= e.Settings.Termination.ConstraintTolerance {
		return true, store.ReasonConstraintTolerance
	}
	return false, store.NotTerminated
}

// ObjectiveStagnation triggers when the dual bound has not improved by more
// than ObjectiveStagnationTolerance over StagnationIterationLimit
// consecutive iterations, grounded on
// original_source/TaskCheckObjectiveStagnation.cpp's lookback-window
// approach.
func ObjectiveStagnation(e *env.Environment) (bool, store.TerminationReason) {
	limit := e.Settings.Termination.StagnationIterationLimit
	if limit <= 0 {
		return false, store.NotTerminated
	}
	n := len(e.Results.Iterations)
	if n <= limit {
		return false, store.NotTerminated
	}
	recent := e.Results.Iterations[n-1].DualBound
	past := e.Results.Iterations[n-1-limit].DualBound
	if math.Abs(recent-past) <= e.Settings.Termination.ObjectiveStagnationTolerance {
		return true, store.ReasonObjectiveStagnation
	}
	return false, store.NotTerminated
}

// IterationLimit triggers once the iteration count reaches the configured
// ceiling.
func IterationLimit(e *env.Environment) (bool, store.TerminationReason) {
	if len(e.Results.Iterations) >= e.Settings.Termination.IterationLimit {
		return true, store.ReasonIterationLimit
	}
	return false, store.NotTerminated
}

// TimeLimit triggers once the wall-clock deadline has passed.
func TimeLimit(e *env.Environment) (bool, store.TerminationReason) {
	if e.TimeRemaining() <= 0 {
		return true, store.ReasonTimeLimit
	}
	return false, store.NotTerminated
}

// IterationError triggers when the current iteration's MIP solve status
// reports an unrecoverable error (distinct from infeasible-and-expected,
// which the pipeline handles separately).
func IterationError(e *env.Environment) (bool, store.TerminationReason) {
	cur := e.Results.Current()
	if cur != nil && cur.Status == store.StatusError {
		return true, store.ReasonIterationError
	}
	return false, store.NotTerminated
}

// DefaultChecks is the order original_source runs its termination tasks
// in: cheapest/most-decisive checks first.
func DefaultChecks() []Check {
	return []Check{
		IterationError,
		TimeLimit,
		IterationLimit,
		AbsoluteGap,
		RelativeGap,
		ConstraintTolerance,
		ObjectiveStagnation,
	}
}

// Evaluate runs every check in order and returns the first that triggers.
func Evaluate(e *env.Environment, checks []Check) (bool, store.TerminationReason) {
	for _, check := range checks {
		if triggered, reason := check(e); triggered {
			return true, reason
		}
	}
	return false, store.NotTerminated
}
