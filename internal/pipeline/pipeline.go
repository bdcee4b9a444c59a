// Package pipeline implements the Task Pipeline of spec §4.5: a named,
// ordered sequence of tasks, each returning either Continue (move to the
// next task, or to an explicitly set one) or Finalize(reason) (stop the
// whole solve). Grounded on original_source/src/Tasks' TaskBase/run()
// dispatch loop and its SolutionStrategy's addTask/getNextTask/setNextTask
// bookkeeping, translated from a C++ runtime-polymorphic task list into a
// Go slice of named closures plus an explicit sum-type outcome, per the
// Design Notes' call for "no implicit goto".
package pipeline

import (
	"context"
	"math"

	"github.com/zeta1999/shot-go/internal/dual"
	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/hyperplane"
	"github.com/zeta1999/shot-go/internal/interior"
	"github.com/zeta1999/shot-go/internal/mip"
	"github.com/zeta1999/shot-go/internal/nlp"
	"github.com/zeta1999/shot-go/internal/primal"
	"github.com/zeta1999/shot-go/internal/reformulate"
	"github.com/zeta1999/shot-go/internal/rootsearch"
	"github.com/zeta1999/shot-go/internal/shotmodel"
	"github.com/zeta1999/shot-go/internal/store"
	"github.com/zeta1999/shot-go/internal/termination"
)

// Outcome is a task's return value: either move on (Finalized == false)
// or stop the pipeline (Finalized == true, Reason explains why).
type Outcome struct {
	Finalized bool
	Reason    store.TerminationReason
	// Goto, if non-empty, names the task to run next instead of the
	// following one in sequence (spec's setNextTask). Empty means
	// fall through.
	Goto string
}

// Continue advances to the next task in sequence.
func Continue() Outcome { return Outcome{} }

// ContinueAt advances to the named task instead of the next one in
// sequence.
func ContinueAt(name string) Outcome { return Outcome{Goto: name} }

// Finalize stops the pipeline with the given reason.
func Finalize(reason store.TerminationReason) Outcome {
	return Outcome{Finalized: true, Reason: reason}
}

// Task is one named pipeline step.
type Task struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Outcome
}

// Runner owns every component a task may call into and the mutable
// per-solve state (current MIP solution, interior point, etc.) tasks
// read and write as they run. It is the Go stand-in for the original's
// process-wide collaborator set, made explicit and passed by reference
// instead of reached for through a singleton (spec §9 Design Notes).
type Runner struct {
	Env *env.Environment

	Original     shotmodel.Problem
	Reformulated *reformulate.ReformulatedProblem
	Mapping      reformulate.PointMapping

	MIPSolver mip.Solver
	NLPSolver nlp.Solver
	Hyper     *hyperplane.Engine

	InteriorPoint interior.Point
	HasInterior   bool

	CurrentMIPSolution []float64
	CurrentMIPStatus   store.MIPStatus

	// LastLinesearchPoint is the boundary point found by the aggregate
	// linesearch (taskAddHyperplanes in CutModeAggregate), consumed by
	// taskSelectPrimalCandidatesFromLinesearch; nil when the linesearch
	// didn't run or found nothing.
	LastLinesearchPoint []float64

	PrimalCadence *primal.Cadence
	TestedPoints  *primal.TestedPoints
	DualCadence   *dual.Cadence

	Checks []termination.Check

	tasks   []Task
	byName  map[string]int
}

// NewRunner reformulates original and wires every component for a fresh
// solve. It does not build the MIP model: mipSolver must already hold the
// original problem's variables, linear constraints and objective and be
// finalized. The interior point is searched by the findInteriorPoint task
// that BuildDefault adds first.
func NewRunner(e *env.Environment, original shotmodel.Problem, mipSolver mip.Solver, nlpSolver nlp.Solver) *Runner {
	rp, mapping := reformulate.Reformulate(original, reformulate.DefaultSettings())

	return &Runner{
		Env:           e,
		Original:      original,
		Reformulated:  rp,
		Mapping:       mapping,
		MIPSolver:     mipSolver,
		NLPSolver:     nlpSolver,
		Hyper:         hyperplane.New(mipSolver),
		PrimalCadence: &primal.Cadence{},
		TestedPoints:  primal.NewTestedPoints(),
		DualCadence:   &dual.Cadence{},
		Checks:        termination.DefaultChecks(),
		byName:        make(map[string]int),
	}
}

// AddTask appends a task to the end of the pipeline (spec's addTask).
func (r *Runner) AddTask(t Task) {
	r.byName[t.Name] = len(r.tasks)
	r.tasks = append(r.tasks, t)
}

// Run executes the pipeline from its first task until a task finalizes
// or ctx is done, returning the outcome that stopped it.
func (r *Runner) Run(ctx context.Context) Outcome {
	if len(r.tasks) == 0 {
		return Finalize(store.ReasonIterationError)
	}
	idx := 0
	for {
		if ctx.Err() != nil {
			return Finalize(store.ReasonTimeLimit)
		}
		t := r.tasks[idx]
		out := t.Run(ctx, r)
		if out.Finalized {
			return out
		}
		if out.Goto != "" {
			next, ok := r.byName[out.Goto]
			if !ok {
				return Finalize(store.ReasonIterationError)
			}
			idx = next
			continue
		}
		idx++
		if idx >= len(r.tasks) {
			return Finalize(store.NotTerminated)
		}
	}
}

// BuildDefault assembles the standard task sequence: the one-time
// interior-point search, then the per-iteration tasks (spec §4.5 from
// state 6 on). Reformulation is already done by NewRunner.
func BuildDefault(r *Runner) {
	r.AddTask(Task{Name: "findInteriorPoint", Run: taskFindInteriorPoint})
	r.AddTask(Task{Name: "initializeIteration", Run: taskInitializeIteration})
	r.AddTask(Task{Name: "solveIteration", Run: taskSolveIteration})
	r.AddTask(Task{Name: "checkIterationError", Run: taskCheckIterationError})
	r.AddTask(Task{Name: "addHyperplanes", Run: taskAddHyperplanes})
	r.AddTask(Task{Name: "selectPrimalCandidatesFromLinesearch", Run: taskSelectPrimalCandidatesFromLinesearch})
	r.AddTask(Task{Name: "runPrimalHeuristic", Run: taskRunPrimalHeuristic})
	r.AddTask(Task{Name: "runDualRepair", Run: taskRunDualRepair})
	r.AddTask(Task{Name: "checkTermination", Run: taskCheckTermination})
	r.AddTask(Task{Name: "sealIteration", Run: taskSealIteration})
	// sealIteration returns to initializeIteration for the next round
	// (spec §4.5's loop back to state 6), via an explicit Goto rather
	// than letting the sequence end.
}

func taskFindInteriorPoint(ctx context.Context, r *Runner) Outcome {
	if len(r.Reformulated.NonlinearConstraints) == 0 {
		r.HasInterior = false
		return Continue()
	}
	pt, err := interior.Find(r.Reformulated, r.NLPSolver, interior.DefaultSettings())
	if err != nil {
		return Continue()
	}
	r.InteriorPoint = pt
	r.HasInterior = pt.MaxViolation < 0
	return Continue()
}

func taskInitializeIteration(ctx context.Context, r *Runner) Outcome {
	r.Env.Results.NewIteration()
	return Continue()
}

func taskSolveIteration(ctx context.Context, r *Runner) Outcome {
	status, err := r.MIPSolver.Solve(ctx)
	r.CurrentMIPStatus = status
	if err != nil && status != store.StatusInfeasible {
		it := r.Env.Results.Current()
		it.Status = store.StatusError
		return Continue()
	}

	it := r.Env.Results.Current()
	it.Type = store.IterationMIP
	it.Status = status

	if status == store.StatusOptimal || status == store.StatusFeasible {
		r.CurrentMIPSolution = r.MIPSolver.GetVariableSolution(0)
		obj := r.MIPSolver.GetObjectiveValue(0)
		it.PrimalBound = obj
		// A MIP solution that already satisfies every nonlinear constraint
		// is a primal candidate in its own right.
		if x := r.CurrentMIPSolution; x != nil {
			if dev := dual.WorstViolation(r.Reformulated, x); dev.Value <= r.Env.Settings.Primal.ConstraintTolerance {
				xOriginal := r.Mapping.ToOriginal(x)
				r.Env.Results.UpdatePrimal(xOriginal, linesearchObjectiveValue(r.Reformulated, xOriginal))
			}
		}
	}
	bound := r.MIPSolver.GetDualObjectiveValue()
	if r.Env.Results.UpdateDual(bound) {
		it.DualBound = bound
	}
	return Continue()
}

func taskCheckIterationError(ctx context.Context, r *Runner) Outcome {
	it := r.Env.Results.Current()
	if it.Status == store.StatusError {
		return Finalize(store.ReasonIterationError)
	}
	if it.Status == store.StatusInfeasible && len(r.Env.Results.Iterations) == 1 {
		return Finalize(store.ReasonIterationError)
	}
	return Continue()
}

// taskAddHyperplanes dispatches to the configured cut mode: PerConstraint
// linearizes every violated nonlinear constraint individually (spec
// §4.4's per-constraint tie-break); Aggregate instead runs a single
// linesearch over the aggregate (max) violation and cuts only the
// arg-max constraint found there (spec §4.4's aggregate tie-break,
// pipeline states 11/23 "UpdateNonlinearObjectiveByLinesearch" /
// "SelectHyperplanePoints via ... linesearch"). Both refine the cut
// point via rootsearch toward the known interior point when one is
// available (spec §4.3/§4.4: "prefer the boundary point found by
// rootsearch over the raw candidate when an interior point is known").
func taskAddHyperplanes(ctx context.Context, r *Runner) Outcome {
	if r.CurrentMIPSolution == nil {
		return Continue()
	}
	if r.Env.Settings.ESH.CutMode == hyperplane.CutModeAggregate && r.HasInterior {
		return addHyperplanesAggregate(r)
	}
	return addHyperplanesPerConstraint(r)
}

func addHyperplanesPerConstraint(r *Runner) Outcome {
	var worst store.MaxDeviation
	addedThisIteration := 0

	for _, ci := range r.Reformulated.NonlinearConstraints {
		c := &r.Reformulated.Problem.Constraints[ci]
		v := c.Expr.Value(r.CurrentMIPSolution)
		if v > worst.Value {
			worst = store.MaxDeviation{ConstraintIndex: ci, Value: v}
		}

		tol := r.Env.Settings.Rootsearch.ConstraintTolerance
		if v <= tol {
			continue
		}

		point := r.CurrentMIPSolution
		origin := hyperplane.OriginMIPSolution
		if r.HasInterior {
			evaluator := func(x []float64) float64 { return c.Expr.Value(x) }
			res, err := rootsearch.FindZero(evaluator, r.InteriorPoint.X, r.CurrentMIPSolution, rootsearch.Settings{
				MaxIterations: r.Env.Settings.Rootsearch.MaxIterations,
				LambdaTol:     r.Env.Settings.Rootsearch.LambdaTolerance,
				ConstrTol:     tol,
			})
			if err == nil {
				point = res.Exterior
				origin = hyperplane.OriginInteriorExteriorRootsearch
			}
		}

		if _, ok := r.Hyper.Generate(c, point, origin); ok {
			addedThisIteration++
		}
	}

	it := r.Env.Results.Current()
	it.MaxDeviation = worst
	it.HyperplanesAddedThisIteration = addedThisIteration
	it.TotalHyperplanes = len(r.Hyper.Pool())

	return Continue()
}

// aggregateViolation is the aggregate (max-over-constraints) evaluator
// the linesearch brackets a zero of, at the point a fraction lambda of
// the way from the interior point to the exterior (MIP solution) point.
func aggregateViolation(r *Runner, lambda float64) (float64, []float64) {
	pInt, pExt := r.InteriorPoint.X, r.CurrentMIPSolution
	x := linesearchPoint(pInt, pExt, lambda)
	worst := math.Inf(-1)
	for _, ci := range r.Reformulated.NonlinearConstraints {
		v := r.Reformulated.Problem.Constraints[ci].Expr.Value(x)
		if v > worst {
			worst = v
		}
	}
	return worst, x
}

func linesearchPoint(pInt, pExt []float64, lambda float64) []float64 {
	x := make([]float64, len(pInt))
	for i := range x {
		x[i] = (1-lambda)*pInt[i] + lambda*pExt[i]
	}
	return x
}

// addHyperplanesAggregate implements the linesearch-driven aggregate cut:
// bisect along the segment from the interior point to the current MIP
// solution for the boundary where the aggregate violation crosses zero,
// then cut only the constraint that is worst-violated there. The
// boundary point is also handed to taskSelectPrimalCandidatesFromLinesearch
// as a candidate, since a linesearch boundary close enough to the
// interior side is often already primal-feasible.
func addHyperplanesAggregate(r *Runner) Outcome {
	tol := r.Env.Settings.Rootsearch.ConstraintTolerance
	g := func(lambda float64) float64 {
		v, _ := aggregateViolation(r, lambda)
		return v
	}

	it := r.Env.Results.Current()
	added := 0
	r.LastLinesearchPoint = nil

	if vExt, _ := aggregateViolation(r, 1); vExt > tol {
		_, hi, err := rootsearch.FindZeroScalar(g, 0, 1, rootsearch.Settings{
			MaxIterations: r.Env.Settings.Rootsearch.MaxIterations,
			LambdaTol:     r.Env.Settings.Rootsearch.LambdaTolerance,
			ConstrTol:     tol,
		})
		if err == nil {
			_, point := aggregateViolation(r, hi)
			r.LastLinesearchPoint = point

			var candidates []*shotmodel.Constraint
			for _, ci := range r.Reformulated.NonlinearConstraints {
				candidates = append(candidates, &r.Reformulated.Problem.Constraints[ci])
			}
			if _, ok := r.Hyper.GenerateForMostViolated(candidates, point, hyperplane.OriginLinesearch); ok {
				added++
			}
		}
	}

	var worst store.MaxDeviation
	for _, ci := range r.Reformulated.NonlinearConstraints {
		v := r.Reformulated.Problem.Constraints[ci].Expr.Value(r.CurrentMIPSolution)
		if v > worst.Value {
			worst = store.MaxDeviation{ConstraintIndex: ci, Value: v}
		}
	}
	it.MaxDeviation = worst
	it.HyperplanesAddedThisIteration = added
	it.TotalHyperplanes = len(r.Hyper.Pool())

	return Continue()
}

// taskSelectPrimalCandidatesFromLinesearch checks the aggregate
// linesearch's boundary point for feasibility in original space; if it
// satisfies every nonlinear constraint within tolerance, it's recorded as
// a primal candidate the same way a fixed-integer NLP solve's result is
// (spec §4.5 state 13).
func taskSelectPrimalCandidatesFromLinesearch(ctx context.Context, r *Runner) Outcome {
	point := r.LastLinesearchPoint
	r.LastLinesearchPoint = nil
	if point == nil {
		return Continue()
	}

	dev := store.MaxDeviation{ConstraintIndex: -1, Value: math.Inf(-1)}
	for _, ci := range r.Reformulated.NonlinearConstraints {
		v := r.Reformulated.Problem.Constraints[ci].Expr.Value(point)
		if v > dev.Value {
			dev = store.MaxDeviation{ConstraintIndex: ci, Value: v}
		}
	}
	if dev.ConstraintIndex >= 0 && dev.Value > r.Env.Settings.Primal.ConstraintTolerance {
		return Continue()
	}

	xOriginal := r.Mapping.ToOriginal(point)
	objective := linesearchObjectiveValue(r.Reformulated, xOriginal)
	r.Env.Results.UpdatePrimal(xOriginal, objective)

	it := r.Env.Results.Current()
	it.Pool = append(it.Pool, store.SolutionPoint{
		X:              append([]float64(nil), xOriginal...),
		Objective:      objective,
		MaxDeviation:   store.MaxDeviation{ConstraintIndex: dev.ConstraintIndex, Value: math.Max(dev.Value, 0)},
		IterationFound: it.Number,
	})
	return Continue()
}

// linesearchObjectiveValue evaluates the original objective at xOriginal
// in minimization sense (negated for a maximize problem), the sense
// store.Results.UpdatePrimal compares in.
func linesearchObjectiveValue(rp *reformulate.ReformulatedProblem, xOriginal []float64) float64 {
	var s float64
	if rp.MuIndex >= 0 {
		s = rp.OriginalObjective.Value(xOriginal)
	} else {
		obj := rp.Problem.Objective
		for i, c := range obj.Linear {
			s += c * xOriginal[i]
		}
		s += obj.Const
	}
	if rp.Problem.Objective.Sense == shotmodel.Maximize {
		return -s
	}
	return s
}

func taskRunPrimalHeuristic(ctx context.Context, r *Runner) Outcome {
	iteration := len(r.Env.Results.Iterations)
	if r.CurrentMIPSolution == nil || !r.PrimalCadence.ShouldRun(r.Env, iteration) {
		return Continue()
	}
	r.PrimalCadence.MarkRun(r.Env, iteration)

	result := primal.Run(r.Env, r.Reformulated, r.NLPSolver, r.Hyper, r.CurrentMIPSolution, r.TestedPoints)
	if result.Ran {
		r.PrimalCadence.Adapt(result.Feasible)
	}
	if result.Ran && result.Feasible {
		it := r.Env.Results.Current()
		it.Pool = append(it.Pool, store.SolutionPoint{
			X:              result.X,
			Objective:      result.Objective,
			MaxDeviation:   result.Deviation,
			IterationFound: iteration,
		})
	}
	return Continue()
}

func taskRunDualRepair(ctx context.Context, r *Runner) Outcome {
	iteration := len(r.Env.Results.Iterations)
	if r.CurrentMIPSolution == nil {
		return Continue()
	}

	key := dual.AssignmentKey(r.Reformulated.Problem, r.CurrentMIPSolution)
	r.DualCadence.Observe(key)

	worst := dual.WorstViolation(r.Reformulated, r.CurrentMIPSolution)
	if !r.DualCadence.ShouldRun(r.Env, iteration, worst.Value) {
		return Continue()
	}
	r.DualCadence.MarkRun(iteration)

	dual.Run(ctx, r.Env, r.MIPSolver, r.Reformulated, r.Hyper, r.CurrentMIPSolution, r.HasInterior, r.InteriorPoint.X)
	return Continue()
}

func taskCheckTermination(ctx context.Context, r *Runner) Outcome {
	if triggered, reason := termination.Evaluate(r.Env, r.Checks); triggered {
		return Finalize(reason)
	}
	return Continue()
}

func taskSealIteration(ctx context.Context, r *Runner) Outcome {
	r.Env.Results.Current().Seal()
	return ContinueAt("initializeIteration")
}

// Solve runs NewRunner + BuildDefault + Run to completion, the entry
// point cmd/shotsolver calls.
func Solve(e *env.Environment, original shotmodel.Problem, mipSolver mip.Solver, nlpSolver nlp.Solver) (*Runner, Outcome) {
	ctx := context.Background()
	if e.Settings.Termination.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, e.Deadline)
		defer cancel()
	}

	r := NewRunner(e, original, mipSolver, nlpSolver)
	BuildDefault(r)
	out := r.Run(ctx)
	e.Results.TerminationReason = out.Reason
	return r, out
}
