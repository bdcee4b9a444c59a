package hyperplane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zeta1999/shot-go/internal/shotmodel"
	"github.com/zeta1999/shot-go/internal/store"
)

// fakeSolver records AddHyperplane calls without implementing any real
// solve, enough to exercise the Engine in isolation.
type fakeSolver struct {
	rows [][]float64
	rhs  []float64

	noGoodOneValued  []int
	noGoodZeroValued []int
	noGoodCalls      int
}

func (f *fakeSolver) AddVariable(string, shotmodel.VariableKind, float64, float64) int { return 0 }
func (f *fakeSolver) AddLinearConstraint([]float64, float64, float64) int              { return 0 }
func (f *fakeSolver) FinalizeObjective(shotmodel.Sense, []float64, float64)             {}
func (f *fakeSolver) FinalizeProblem() error                                           { return nil }
func (f *fakeSolver) Solve(context.Context) (store.MIPStatus, error)                   { return store.StatusOptimal, nil }
func (f *fakeSolver) GetSolutionCount() int                                            { return 0 }
func (f *fakeSolver) GetVariableSolution(int) []float64                                { return nil }
func (f *fakeSolver) GetObjectiveValue(int) float64                                    { return 0 }
func (f *fakeSolver) GetDualObjectiveValue() float64                                   { return 0 }
func (f *fakeSolver) SetCutoff(float64)                                                {}
func (f *fakeSolver) SetTimeLimit(time.Duration)                                       {}
func (f *fakeSolver) SetSolutionLimit(int)                                             {}
func (f *fakeSolver) ActivateDiscreteVariables(bool)                                   {}
func (f *fakeSolver) FixVariables([]int, []float64)                                    {}
func (f *fakeSolver) UnfixVariables()                                                  {}
func (f *fakeSolver) UpdateVariableBound(int, float64, float64)                        {}
func (f *fakeSolver) AddMIPStart([]float64)                                            {}
func (f *fakeSolver) AddIntegerNoGoodCut(oneValued, zeroValued []int) {
	f.noGoodCalls++
	f.noGoodOneValued = oneValued
	f.noGoodZeroValued = zeroValued
}

func (f *fakeSolver) AddHyperplane(coeffs []float64, rhs float64) int {
	f.rows = append(f.rows, coeffs)
	f.rhs = append(f.rhs, rhs)
	return len(f.rows) - 1
}

func quadratic() *shotmodel.Constraint {
	return &shotmodel.Constraint{
		Index: 0,
		Expr:  shotmodel.FuncExpression{F: func(x []float64) float64 { return x[0]*x[0] - 4 }},
	}
}

func TestEngine_Generate_InstallsLinearization(t *testing.T) {
	solver := &fakeSolver{}
	e := New(solver)

	c := quadratic()
	hp, ok := e.Generate(c, []float64{3}, OriginMIPSolution)

	assert.True(t, ok)
	assert.Len(t, solver.rows, 1)
	// f(x) = x^2 - 4, f'(3) = 6, linearization: 6*x - 13 <= 0
	assert.InDelta(t, 6, hp.Gradient[0], 1e-3)
}

func TestEngine_Generate_DedupsSamePoint(t *testing.T) {
	solver := &fakeSolver{}
	e := New(solver)

	c := quadratic()
	_, ok1 := e.Generate(c, []float64{3}, OriginMIPSolution)
	_, ok2 := e.Generate(c, []float64{3}, OriginMIPSolution)

	assert.True(t, ok1)
	assert.False(t, ok2)
	assert.Len(t, solver.rows, 1)
}

func TestEngine_AddIntegerNoGoodCut_ForwardsToSolver(t *testing.T) {
	solver := &fakeSolver{}
	e := New(solver)

	e.AddIntegerNoGoodCut([]int{0, 2}, []int{1})

	assert.Equal(t, 1, solver.noGoodCalls)
	assert.Equal(t, []int{0, 2}, solver.noGoodOneValued)
	assert.Equal(t, []int{1}, solver.noGoodZeroValued)
}

func TestEngine_GenerateForMostViolated_PicksArgMax(t *testing.T) {
	solver := &fakeSolver{}
	e := New(solver)

	mild := &shotmodel.Constraint{Index: 0, Expr: shotmodel.FuncExpression{F: func(x []float64) float64 { return 1 }}}
	worst := &shotmodel.Constraint{Index: 1, Expr: shotmodel.FuncExpression{F: func(x []float64) float64 { return 5 }}}

	hp, ok := e.GenerateForMostViolated([]*shotmodel.Constraint{mild, worst}, []float64{0}, OriginLinesearch)

	assert.True(t, ok)
	assert.Equal(t, 1, hp.SourceConstraint)
	assert.Equal(t, OriginLinesearch, hp.Origin)
	assert.Len(t, solver.rows, 1, "only the arg-max constraint is cut, not every violated one")
}

func TestCutMode_DefaultZeroValueIsPerConstraint(t *testing.T) {
	var m CutMode
	assert.Equal(t, CutModePerConstraint, m)
}

func TestEngine_GenerateForAllViolated_SkipsFeasible(t *testing.T) {
	solver := &fakeSolver{}
	e := New(solver)

	violated := &shotmodel.Constraint{Index: 0, Expr: shotmodel.FuncExpression{F: func(x []float64) float64 { return 1 }}}
	feasible := &shotmodel.Constraint{Index: 1, Expr: shotmodel.FuncExpression{F: func(x []float64) float64 { return -1 }}}

	gen := e.GenerateForAllViolated([]*shotmodel.Constraint{violated, feasible}, []float64{0}, 1e-6, OriginMIPSolution)

	assert.Len(t, gen, 1)
	assert.Equal(t, 0, gen[0].SourceConstraint)
}
