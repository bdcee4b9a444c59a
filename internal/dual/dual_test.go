package dual

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/hyperplane"
	"github.com/zeta1999/shot-go/internal/mip"
	"github.com/zeta1999/shot-go/internal/reformulate"
	"github.com/zeta1999/shot-go/internal/shotmodel"
)

func TestCadence_ShouldRun_ThrottledByFrequency(t *testing.T) {
	settings := env.Defaults()
	settings.FixedInteger.RepairFrequency = 4
	settings.FixedInteger.ConstraintTolerance = 1e-5
	e := env.New(settings, nil)

	c := &Cadence{}
	c.Observe("a")
	c.Observe("a")
	c.Observe("a")
	// Repeated assignment and a real violation, but frequency not yet due.
	assert.False(t, c.ShouldRun(e, 1, 1.0))
	assert.True(t, c.ShouldRun(e, 4, 1.0))
}

func TestCadence_ShouldRun_RequiresRepeatedAssignmentAndViolation(t *testing.T) {
	settings := env.Defaults()
	settings.FixedInteger.RepairFrequency = 0
	settings.FixedInteger.ConstraintTolerance = 1e-5
	e := env.New(settings, nil)

	c := &Cadence{}
	c.Observe("a")
	c.Observe("b")
	c.Observe("a")
	assert.False(t, c.ShouldRun(e, 1, 1.0), "assignment not repeated three times running")

	c2 := &Cadence{}
	c2.Observe("a")
	c2.Observe("a")
	c2.Observe("a")
	assert.False(t, c2.ShouldRun(e, 1, 0), "violation within tolerance")
	assert.True(t, c2.ShouldRun(e, 1, 1.0))
}

func TestRun_NoDiscreteVariables_NoOp(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("x", shotmodel.Real, 0, 10)

	solver := mip.NewBranchAndBound(1)
	e := env.New(env.Defaults(), nil)
	rp, _ := reformulate.Reformulate(p, reformulate.DefaultSettings())
	hyperEngine := hyperplane.New(solver)

	result := Run(context.Background(), e, solver, rp, hyperEngine, []float64{3}, false, nil)
	assert.False(t, result.Ran)
}

func TestRun_FixesAndAlwaysUnfixes(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("b", shotmodel.Binary, 0, 1)
	p.AddVariable("x", shotmodel.Real, 0, 10)

	solver := mip.NewBranchAndBound(1)
	solver.AddVariable("b", shotmodel.Binary, 0, 1)
	solver.AddVariable("x", shotmodel.Real, 0, 10)
	solver.AddLinearConstraint([]float64{0, 1}, math.Inf(-1), 10)
	solver.FinalizeObjective(shotmodel.Minimize, []float64{0, -1}, 0)
	assert.NoError(t, solver.FinalizeProblem())

	e := env.New(env.Defaults(), nil)
	e.Results.NewIteration()
	rp, _ := reformulate.Reformulate(p, reformulate.DefaultSettings())
	hyperEngine := hyperplane.New(solver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rec := &recordingSolver{Solver: solver}
	result := Run(ctx, e, rec, rp, hyperEngine, []float64{1, 5}, false, nil)
	assert.True(t, result.Ran)
	assert.False(t, math.IsNaN(result.Bound))
	assert.Equal(t, []int{0}, rec.fixed)
	assert.Equal(t, 1, rec.unfixes)
	assert.Equal(t, []bool{false, true}, rec.active)
}

// recordingSolver forwards to a mip.Solver and records the fix, unfix and
// activation calls made through it.
type recordingSolver struct {
	mip.Solver
	fixed   []int
	unfixes int
	active  []bool
}

func (r *recordingSolver) FixVariables(indices []int, values []float64) {
	r.fixed = append([]int(nil), indices...)
	r.Solver.FixVariables(indices, values)
}

func (r *recordingSolver) UnfixVariables() {
	r.unfixes++
	r.Solver.UnfixVariables()
}

func (r *recordingSolver) ActivateDiscreteVariables(active bool) {
	r.active = append(r.active, active)
	r.Solver.ActivateDiscreteVariables(active)
}

func TestRun_StopsOnIterationBudget_NoNonlinearConstraints(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("b", shotmodel.Binary, 0, 1)
	p.AddVariable("x", shotmodel.Real, 0, 10)

	solver := mip.NewBranchAndBound(1)
	solver.AddVariable("b", shotmodel.Binary, 0, 1)
	solver.AddVariable("x", shotmodel.Real, 0, 10)
	solver.AddLinearConstraint([]float64{0, 1}, math.Inf(-1), 10)
	solver.FinalizeObjective(shotmodel.Minimize, []float64{0, -1}, 0)
	assert.NoError(t, solver.FinalizeProblem())

	settings := env.Defaults()
	settings.FixedInteger.MaxIterations = 3
	e := env.New(settings, nil)
	e.Results.NewIteration()
	rp, _ := reformulate.Reformulate(p, reformulate.DefaultSettings())
	hyperEngine := hyperplane.New(solver)

	result := Run(context.Background(), e, solver, rp, hyperEngine, []float64{1, 5}, false, nil)
	assert.True(t, result.Ran)
	// No nonlinear constraints means the first solve's violation check
	// exits the loop immediately, well under MaxIterations.
	assert.LessOrEqual(t, result.Iterations, 3)
}
