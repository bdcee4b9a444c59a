// Package primal implements the Primal Bounding heuristic of spec §4.6:
// given a MIP solution's discrete values, fix them and solve the
// resulting continuous NLP to look for a primal-feasible point that
// improves the incumbent. Grounded on
// original_source/src/PrimalSolutionStrategyFixedNLP.cpp: the "fix
// discrete, solve continuous, remember what was tried" loop, adapted to
// this project's internal/nlp.Solver capability interface instead of a
// concrete Ipopt handle.
package primal

import (
	"math"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/hyperplane"
	"github.com/zeta1999/shot-go/internal/nlp"
	"github.com/zeta1999/shot-go/internal/reformulate"
	"github.com/zeta1999/shot-go/internal/shotmodel"
	"github.com/zeta1999/shot-go/internal/store"
)

// Cadence decides whether the heuristic runs this iteration, mirroring
// original_source's combined iteration/time frequency gate. The window
// (iterationFrequency/timeFrequency) is adaptive: Adapt narrows it after
// a successful run and widens it after a failed one, per spec §4.6.
type Cadence struct {
	lastRunIteration int
	lastRunElapsed   float64

	iterationFrequency float64
	timeFrequency      float64

	baseIterationFrequency float64
	baseTimeFrequency      float64
	initialized            bool
}

func (c *Cadence) ensureInit(e *env.Environment) {
	if c.initialized {
		return
	}
	c.iterationFrequency = float64(e.Settings.Primal.IterationFrequency)
	c.timeFrequency = e.Settings.Primal.TimeFrequency.Seconds()
	c.baseIterationFrequency = c.iterationFrequency
	c.baseTimeFrequency = c.timeFrequency
	c.initialized = true
}

// ShouldRun reports whether the primal heuristic should fire at the
// current iteration, given the (possibly adapted) frequencies. It is
// deliberately an "or" of the two frequencies (either one being due
// triggers a run), matching the original's combined gate.
func (c *Cadence) ShouldRun(e *env.Environment, iteration int) bool {
	c.ensureInit(e)
	dueByIteration := c.iterationFrequency > 0 && float64(iteration-c.lastRunIteration) >= c.iterationFrequency
	dueByTime := c.timeFrequency > 0 && e.Elapsed().Seconds()-c.lastRunElapsed >= c.timeFrequency
	return dueByIteration || dueByTime
}

func (c *Cadence) MarkRun(e *env.Environment, iteration int) {
	c.lastRunIteration = iteration
	c.lastRunElapsed = e.Elapsed().Seconds()
}

// Adapt widens or narrows the cadence window based on whether the run
// just marked found a feasible NLP solution (spec §4.6): success shrinks
// the window by 0.98x (iteration) / 0.9x (time), never below the
// originally configured frequency; failure widens it by 1.02x / 1.1x,
// never above 10x the original.
func (c *Cadence) Adapt(success bool) {
	if !c.initialized {
		return
	}
	if success {
		c.iterationFrequency = math.Max(c.baseIterationFrequency, c.iterationFrequency*0.98)
		c.timeFrequency = math.Max(c.baseTimeFrequency, c.timeFrequency*0.9)
	} else {
		c.iterationFrequency = math.Min(c.baseIterationFrequency*10, c.iterationFrequency*1.02)
		c.timeFrequency = math.Min(c.baseTimeFrequency*10, c.timeFrequency*1.1)
	}
}

// TestedPoints remembers which discrete assignments have already been
// tried, so the heuristic never re-solves the same fixed-integer NLP
// twice. Assignments are compared exactly, by their rounded discrete
// values, so any repeat is caught regardless of when it was recorded —
// see DESIGN.md Open Question (b).
type TestedPoints struct {
	seen       map[string]bool
	countAtRun int
}

func NewTestedPoints() *TestedPoints {
	return &TestedPoints{seen: make(map[string]bool)}
}

func keyFor(discreteIndices []int, x []float64) string {
	b := make([]byte, 0, len(discreteIndices)*4)
	for _, idx := range discreteIndices {
		v := int64(math.Round(x[idx]))
		b = append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), ':')
	}
	return string(b)
}

// AlreadyTested reports whether this discrete assignment (rounded) has
// already been passed to Record, in this run or any earlier one.
func (t *TestedPoints) AlreadyTested(discreteIndices []int, x []float64) bool {
	key := keyFor(discreteIndices, x)
	already := t.seen[key]
	return already
}

func (t *TestedPoints) Record(discreteIndices []int, x []float64) {
	t.seen[keyFor(discreteIndices, x)] = true
}

// StartRun snapshots the tested-point count; run once per heuristic
// invocation, before AlreadyTested/Record are called for that run's
// candidate. AlreadyTested does not consult the snapshot.
func (t *TestedPoints) StartRun() {
	t.countAtRun = len(t.seen)
}

// Result is one heuristic invocation's outcome.
type Result struct {
	Ran         bool
	Feasible    bool
	Improved    bool
	Objective   float64
	X           []float64
	Deviation   store.MaxDeviation
}

// Run fixes the discrete variables of rp at the values given by
// mipSolution and solves the resulting continuous NLP with solver,
// skipping an assignment already tried. A result the solver reports
// optimal (constraints within the adapter's tolerance) is offered to
// e.Results.UpdatePrimal. Otherwise Run adds a repair cut through
// hyperEngine for each violated nonlinear constraint and, when every
// discrete variable is binary, an integer no-good cut for the assignment.
func Run(e *env.Environment, rp *reformulate.ReformulatedProblem, solver nlp.Solver, hyperEngine *hyperplane.Engine, mipSolution []float64, tested *TestedPoints) Result {
	discreteIndices := discreteVariableIndices(rp.Problem)
	if len(discreteIndices) == 0 {
		return Result{}
	}

	tested.StartRun()
	if tested.AlreadyTested(discreteIndices, mipSolution) {
		return Result{}
	}
	tested.Record(discreteIndices, mipSolution)

	values := make([]float64, len(discreteIndices))
	for i, idx := range discreteIndices {
		values[i] = mipSolution[idx]
	}

	lb, ub := rp.Problem.Bounds()
	problem := nlp.Problem{
		N:     len(rp.Problem.Variables),
		Lower: lb,
		Upper: ub,
		Value: func(x []float64) float64 { return objectiveValue(rp.Problem.Objective, x) },
		Grad:  func(x []float64) []float64 { return objectiveGradient(rp.Problem.Objective, x) },
	}
	for _, ci := range rp.NonlinearConstraints {
		problem.Constraints = append(problem.Constraints, rp.Problem.Constraints[ci].Expr)
	}
	solver.SetProblem(problem)
	solver.FixVariables(discreteIndices, values)
	defer solver.UnfixVariables()

	status, err := solver.Solve()
	if err != nil {
		return Result{Ran: true}
	}

	x := solver.GetSolution()
	dev := maxDeviation(rp, x)

	if status != nlp.StatusOptimal {
		if dev.Value > 0 {
			generateRepairCuts(rp, hyperEngine, x)
		}
		if allBinary(rp.Problem, discreteIndices) {
			ones, zeros := splitBinaryAssignment(discreteIndices, mipSolution)
			hyperEngine.AddIntegerNoGoodCut(ones, zeros)
		}
		return Result{Ran: true, Feasible: false, Deviation: dev}
	}

	obj := solver.GetObjectiveValue()
	improved := e.Results.UpdatePrimal(x, obj)

	return Result{
		Ran:       true,
		Feasible:  true,
		Improved:  improved,
		Objective: obj,
		X:         append([]float64(nil), x...),
		Deviation: dev,
	}
}

func generateRepairCuts(rp *reformulate.ReformulatedProblem, hyperEngine *hyperplane.Engine, x []float64) {
	for _, ci := range rp.NonlinearConstraints {
		c := &rp.Problem.Constraints[ci]
		if c.Expr.Value(x) > 0 {
			hyperEngine.Generate(c, x, hyperplane.OriginNLPInfeasible)
		}
	}
}

// allBinary reports whether every discrete variable at the given indices
// is Binary, the precondition for an integer no-good cut (spec §4.6 step
// 4: general integer variables have no finite 0/1 enumeration to cut).
func allBinary(p shotmodel.Problem, discreteIndices []int) bool {
	for _, idx := range discreteIndices {
		if p.Variables[idx].Kind != shotmodel.Binary {
			return false
		}
	}
	return true
}

// splitBinaryAssignment partitions a fixed binary assignment into the
// variables fixed at 1 and at 0, the form mip.Solver.AddIntegerNoGoodCut
// expects.
func splitBinaryAssignment(discreteIndices []int, x []float64) (oneValued, zeroValued []int) {
	for _, idx := range discreteIndices {
		if x[idx] > 0.5 {
			oneValued = append(oneValued, idx)
		} else {
			zeroValued = append(zeroValued, idx)
		}
	}
	return
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

func maxDeviation(rp *reformulate.ReformulatedProblem, x []float64) store.MaxDeviation {
	worst := store.MaxDeviation{ConstraintIndex: -1, Value: math.Inf(-1)}
	for _, ci := range rp.NonlinearConstraints {
		v := rp.Problem.Constraints[ci].Expr.Value(x)
		if v > worst.Value {
			worst = store.MaxDeviation{ConstraintIndex: ci, Value: v}
		}
	}
	if worst.ConstraintIndex < 0 {
		return store.MaxDeviation{}
	}
	return worst
}

// objectiveValue and objectiveGradient work in minimization sense (the
// objective negated for a maximize problem), the sense the NLP minimizes
// and store.Results.UpdatePrimal compares in.
func objectiveValue(obj shotmodel.Objective, x []float64) float64 {
	var s float64
	switch obj.Kind {
	case shotmodel.NonlinearObjective:
		s = obj.Expr.Value(x)
	default:
		for i, c := range obj.Linear {
			s += c * x[i]
		}
		s += obj.Const
	}
	if obj.Sense == shotmodel.Maximize {
		return -s
	}
	return s
}

func objectiveGradient(obj shotmodel.Objective, x []float64) []float64 {
	var g []float64
	if obj.Kind == shotmodel.NonlinearObjective {
		g = obj.Expr.Gradient(x)
	} else {
		g = make([]float64, len(x))
		copy(g, obj.Linear)
	}
	if obj.Sense == shotmodel.Maximize {
		for i := range g {
			g[i] = -g[i]
		}
	}
	return g
}
