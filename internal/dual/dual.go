// Package dual implements the Dual Repair loop of spec §4.7: with the
// incumbent's discrete variables fixed, repeatedly re-solve the MIP
// adapter's relaxation (now a pure LP/QP over the continuous variables,
// densified with extra supporting hyperplanes each pass) to recover a
// tighter, valid dual bound than the last fully-discrete MIP solve
// produced. Grounded on original_source/src/TaskSolveFixedDualProblem.cpp's
// fix/solve/cut/unfix cycle, generalized from Ipopt's strict-fix
// convention to this engine's mip.Solver adapter.
package dual

import (
	"context"
	"math"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/hyperplane"
	"github.com/zeta1999/shot-go/internal/mip"
	"github.com/zeta1999/shot-go/internal/reformulate"
	"github.com/zeta1999/shot-go/internal/rootsearch"
	"github.com/zeta1999/shot-go/internal/shotmodel"
	"github.com/zeta1999/shot-go/internal/store"
)

// Cadence decides when the repair loop runs. The trigger is spec §4.7's
// "the last three iterations produced the same integer assignment and its
// maximum nonlinear constraint violation exceeds tolerance"; RepairFrequency
// throttles how often that trigger is even checked, so a stalled search
// doesn't re-fire the (expensive) repair loop every single iteration.
type Cadence struct {
	lastRunIteration int
	history          []string
}

// Observe records the current iteration's integer assignment, called once
// per outer iteration regardless of whether the repair loop fires.
func (c *Cadence) Observe(assignmentKey string) {
	c.history = append(c.history, assignmentKey)
	if len(c.history) > 3 {
		c.history = c.history[len(c.history)-3:]
	}
}

func (c *Cadence) repeatedAssignment() bool {
	if len(c.history) < 3 {
		return false
	}
	first := c.history[len(c.history)-3]
	for _, h := range c.history[len(c.history)-2:] {
		if h != first {
			return false
		}
	}
	return true
}

// ShouldRun reports whether the repair loop should fire this iteration.
func (c *Cadence) ShouldRun(e *env.Environment, iteration int, maxViolation float64) bool {
	freq := e.Settings.FixedInteger.RepairFrequency
	if freq > 0 && iteration-c.lastRunIteration < freq {
		return false
	}
	return c.repeatedAssignment() && maxViolation > e.Settings.FixedInteger.ConstraintTolerance
}

func (c *Cadence) MarkRun(iteration int) { c.lastRunIteration = iteration }

// Result is one repair loop invocation's outcome.
type Result struct {
	Ran        bool
	Status     store.MIPStatus
	Bound      float64
	Improved   bool
	Iterations int
}

// AssignmentKey builds the comparison key Cadence.Observe tracks: the
// rounded values of p's discrete variables at x.
func AssignmentKey(p shotmodel.Problem, x []float64) string {
	indices := discreteVariableIndices(p)
	b := make([]byte, 0, len(indices)*4)
	for _, idx := range indices {
		v := int64(math.Round(x[idx]))
		b = append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), ':')
	}
	return string(b)
}

// WorstViolation returns the most-violated nonlinear constraint at x, the
// value Cadence.ShouldRun's tolerance check and Run's termination loop
// both consume.
func WorstViolation(rp *reformulate.ReformulatedProblem, x []float64) store.MaxDeviation {
	worst := store.MaxDeviation{ConstraintIndex: -1, Value: math.Inf(-1)}
	for _, ci := range rp.NonlinearConstraints {
		v := rp.Problem.Constraints[ci].Expr.Value(x)
		if v > worst.Value {
			worst = store.MaxDeviation{ConstraintIndex: ci, Value: v}
		}
	}
	return worst
}

// Run fixes solver's discrete variables to incumbentX's values, disables
// branching (ActivateDiscreteVariables(false) — the repaired subproblem is
// a pure continuous relaxation), and iterates up to
// FixedInteger.MaxIterations times: solve, check termination, and if the
// solution still violates a nonlinear constraint, densify the relaxation
// with a supporting hyperplane at that violation (via rootsearch toward
// the known interior point when one exists, else directly at the
// solution) and solve again. The loop stops early when the maximum
// violation drops below ConstraintTolerance, when the LP objective
// stagnates within ObjectiveTolerance for 10 consecutive steps, or when
// the LP objective already exceeds the primal bound (this fixed
// assignment cannot improve on the incumbent). solver's discrete
// variables are always unfixed and re-activated before returning, on
// every code path, matching the "always paired with an unfix" discipline
// spec §5 and §9 call out.
func Run(ctx context.Context, e *env.Environment, solver mip.Solver, rp *reformulate.ReformulatedProblem, hyperEngine *hyperplane.Engine, incumbentX []float64, hasInterior bool, interiorX []float64) Result {
	discreteIndices := discreteVariableIndices(rp.Problem)
	if len(discreteIndices) == 0 {
		return Result{}
	}

	values := make([]float64, len(discreteIndices))
	for i, idx := range discreteIndices {
		values[i] = incumbentX[idx]
	}

	solver.FixVariables(discreteIndices, values)
	solver.ActivateDiscreteVariables(false)
	defer func() {
		solver.ActivateDiscreteVariables(true)
		solver.UnfixVariables()
	}()

	maxIter := e.Settings.FixedInteger.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}
	objTol := e.Settings.FixedInteger.ObjectiveTolerance
	constrTol := e.Settings.FixedInteger.ConstraintTolerance
	const stagnationLimit = 10

	var (
		lastStatus   store.MIPStatus
		lastBound    float64
		improved     bool
		stagnantRuns int
		prevBound    = math.Inf(-1)
		ran          int
	)

	for ran = 0; ran < maxIter; ran++ {
		status, err := solver.Solve(ctx)
		lastStatus = status
		if err != nil {
			break
		}

		bound := solver.GetDualObjectiveValue()
		lastBound = bound
		if e.Results.UpdateDual(bound) {
			improved = true
		}

		if e.Results.BestPrimal.Found && bound >= e.Results.BestPrimal.Objective {
			break
		}

		if math.Abs(bound-prevBound) <= objTol {
			stagnantRuns++
		} else {
			stagnantRuns = 0
		}
		prevBound = bound
		if stagnantRuns >= stagnationLimit {
			break
		}

		x := solver.GetVariableSolution(0)
		worst := WorstViolation(rp, x)
		if worst.ConstraintIndex < 0 || worst.Value <= constrTol {
			break
		}

		point, origin := x, hyperplane.OriginLPFixedIntegers
		if hasInterior {
			c := &rp.Problem.Constraints[worst.ConstraintIndex]
			evaluator := func(p []float64) float64 { return c.Expr.Value(p) }
			res, err := rootsearch.FindZero(evaluator, interiorX, x, rootsearch.Settings{
				MaxIterations: e.Settings.Rootsearch.MaxIterations,
				LambdaTol:     e.Settings.Rootsearch.LambdaTolerance,
				ConstrTol:     constrTol,
			})
			if err == nil {
				point = res.Exterior
				origin = hyperplane.OriginInteriorExteriorRootsearch
			}
		}
		hyperEngine.Generate(&rp.Problem.Constraints[worst.ConstraintIndex], point, origin)
	}

	it := e.Results.Current()
	if it != nil {
		it.Type = store.IterationFixedIntegerLP
		it.Status = lastStatus
		if improved {
			it.DualBound = lastBound
		}
	}

	return Result{Ran: true, Status: lastStatus, Bound: lastBound, Improved: improved, Iterations: ran}
}

func discreteVariableIndices(p shotmodel.Problem) []int {
	var out []int
	for _, v := range p.Variables {
		if v.IsDiscrete() {
			out = append(out, v.Index)
		}
	}
	return out
}
