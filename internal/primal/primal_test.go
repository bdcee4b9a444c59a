package primal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/hyperplane"
	"github.com/zeta1999/shot-go/internal/mip"
	"github.com/zeta1999/shot-go/internal/nlp"
	"github.com/zeta1999/shot-go/internal/reformulate"
	"github.com/zeta1999/shot-go/internal/shotmodel"
)

func TestCadence_ShouldRun_ByIterationFrequency(t *testing.T) {
	settings := env.Defaults()
	settings.Primal.IterationFrequency = 3
	settings.Primal.TimeFrequency = 0
	e := env.New(settings, nil)

	c := &Cadence{}
	assert.False(t, c.ShouldRun(e, 1))
	assert.False(t, c.ShouldRun(e, 2))
	assert.True(t, c.ShouldRun(e, 3))
}

func TestTestedPoints_AlreadyTested(t *testing.T) {
	tp := NewTestedPoints()
	discrete := []int{0, 1}
	x := []float64{1, 2, 3.5}

	tp.StartRun()
	assert.False(t, tp.AlreadyTested(discrete, x))
	tp.Record(discrete, x)

	tp.StartRun()
	assert.True(t, tp.AlreadyTested(discrete, x))
}

func TestCadence_Adapt_SuccessShrinksWindowTowardFloor(t *testing.T) {
	settings := env.Defaults()
	settings.Primal.IterationFrequency = 10
	settings.Primal.TimeFrequency = 0
	e := env.New(settings, nil)

	c := &Cadence{}
	c.ensureInit(e)
	// Widen first so a subsequent shrink has room to move before hitting
	// the floor.
	c.Adapt(false)
	c.Adapt(false)
	widened := c.iterationFrequency
	assert.Greater(t, widened, c.baseIterationFrequency)

	c.Adapt(true)
	assert.Less(t, c.iterationFrequency, widened)
	assert.GreaterOrEqual(t, c.iterationFrequency, c.baseIterationFrequency)

	// Repeated success always settles back down to, but never below, the
	// originally configured frequency.
	for i := 0; i < 50; i++ {
		c.Adapt(true)
	}
	assert.Equal(t, c.baseIterationFrequency, c.iterationFrequency)
}

func TestCadence_Adapt_FailureWidensWindowUpToTenX(t *testing.T) {
	settings := env.Defaults()
	settings.Primal.IterationFrequency = 10
	settings.Primal.TimeFrequency = 0
	e := env.New(settings, nil)

	c := &Cadence{}
	c.ensureInit(e)
	c.Adapt(false)
	assert.InDelta(t, 10.2, c.iterationFrequency, 1e-9)

	for i := 0; i < 200; i++ {
		c.Adapt(false)
	}
	assert.Equal(t, 10*c.baseIterationFrequency, c.iterationFrequency)
}

func TestRun_NLPInfeasiblePureBinary_EmitsIntegerNoGoodCut(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("b", shotmodel.Binary, 0, 1)
	p.AddVariable("x", shotmodel.Real, -10, 10)
	p.Objective = shotmodel.Objective{Kind: shotmodel.LinearObjective, Linear: []float64{0, 1}}
	// Always violated regardless of x, forcing GonumAdapter.Solve to report
	// StatusInfeasible for any fixed assignment.
	p.AddNonlinearConstraint("always_violated", shotmodel.FuncExpression{
		F: func(x []float64) float64 { return 5 },
	}, math.Inf(-1), 0)

	rp, _ := reformulate.Reformulate(p, reformulate.DefaultSettings())

	mipSolver := mip.NewBranchAndBound(1)
	mipSolver.AddVariable("b", shotmodel.Binary, 0, 1)
	mipSolver.AddVariable("x", shotmodel.Real, -10, 10)
	mipSolver.AddLinearConstraint([]float64{0, 1}, math.Inf(-1), 10)
	mipSolver.FinalizeObjective(shotmodel.Minimize, []float64{0, 1}, 0)
	assert.NoError(t, mipSolver.FinalizeProblem())
	recorder := &noGoodRecorder{Solver: mipSolver}
	hyperEngine := hyperplane.New(recorder)

	solver := nlp.NewGonumAdapter()
	e := env.New(env.Defaults(), nil)
	tested := NewTestedPoints()

	mipSolution := []float64{1, 0}
	result := Run(e, rp, solver, hyperEngine, mipSolution, tested)

	assert.True(t, result.Ran)
	assert.False(t, result.Feasible)
	// generateRepairCuts linearizes the still-violated constraint into the
	// Engine's pool; the no-good cut is not pooled, so it is checked on the
	// solver: b was fixed at 1 and is the only discrete variable.
	assert.Len(t, hyperEngine.Pool(), 1)
	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, []int{0}, recorder.ones)
	assert.Empty(t, recorder.zeros)
}

// noGoodRecorder forwards to a mip.Solver and records the integer no-good
// cuts added through it.
type noGoodRecorder struct {
	mip.Solver
	calls int
	ones  []int
	zeros []int
}

func (r *noGoodRecorder) AddIntegerNoGoodCut(oneValuedIndices, zeroValuedIndices []int) {
	r.calls++
	r.ones = append([]int(nil), oneValuedIndices...)
	r.zeros = append([]int(nil), zeroValuedIndices...)
	r.Solver.AddIntegerNoGoodCut(oneValuedIndices, zeroValuedIndices)
}

func TestRun_FixesDiscreteVariablesAndUnfixes(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("b", shotmodel.Binary, 0, 1)
	p.AddVariable("x", shotmodel.Real, -10, 10)
	p.Objective = shotmodel.Objective{
		Kind: shotmodel.NonlinearObjective,
		Expr: shotmodel.FuncExpression{F: func(x []float64) float64 { return x[1] * x[1] }},
	}

	rp, _ := reformulate.Reformulate(p, reformulate.DefaultSettings())
	solver := nlp.NewGonumAdapter()
	hyperEngine := hyperplane.New(mip.NewBranchAndBound(1))
	e := env.New(env.Defaults(), nil)
	tested := NewTestedPoints()

	mipSolution := []float64{1, 0.25, 0}
	result := Run(e, rp, solver, hyperEngine, mipSolution, tested)

	assert.True(t, result.Ran)
	// Fixing must always be undone: the binary variable's bounds on the
	// NLP adapter are back to their original [0, 1] box after Run returns.
	assert.Equal(t, 0.0, solver.GetVariableLowerBounds()[0])
	assert.Equal(t, 1.0, solver.GetVariableUpperBounds()[0])
}
