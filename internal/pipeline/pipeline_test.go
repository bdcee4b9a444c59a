package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/hyperplane"
	"github.com/zeta1999/shot-go/internal/interior"
	"github.com/zeta1999/shot-go/internal/mip"
	"github.com/zeta1999/shot-go/internal/nlp"
	"github.com/zeta1999/shot-go/internal/reformulate"
	"github.com/zeta1999/shot-go/internal/shotmodel"
	"github.com/zeta1999/shot-go/internal/store"
)

// buildLinearMILP constructs the literal scenario of spec §8.1: minimize
// x + y subject to x + y >= 3, x,y integer in [0,10]. It has no nonlinear
// constraints, so the pipeline's interior-point/hyperplane machinery
// should be entirely inert and the MIP relaxation alone should already be
// integer-optimal.
func buildLinearMILP() shotmodel.Problem {
	var p shotmodel.Problem
	p.AddVariable("x", shotmodel.Integer, 0, 10)
	p.AddVariable("y", shotmodel.Integer, 0, 10)
	p.AddLinearConstraint("c1", []float64{1, 1}, 3, math.Inf(1))
	p.Objective = shotmodel.Objective{Kind: shotmodel.LinearObjective, Sense: shotmodel.Minimize, Linear: []float64{1, 1}}
	return p
}

func newMIPSolverFor(p shotmodel.Problem) mip.Solver {
	s := mip.NewBranchAndBound(1)
	for _, v := range p.Variables {
		s.AddVariable(v.Name, v.Kind, v.Lower, v.Upper)
	}
	for _, c := range p.Constraints {
		if c.Kind == shotmodel.LinearConstraint {
			s.AddLinearConstraint(c.Linear, c.Lower, c.Upper)
		}
	}
	s.FinalizeObjective(p.Objective.Sense, p.Objective.Linear, p.Objective.Const)
	s.FinalizeProblem()
	return s
}

func TestPipeline_LinearMILP_SolvesInOneIteration(t *testing.T) {
	p := buildLinearMILP()
	settings := env.Defaults()
	settings.Termination.IterationLimit = 10
	e := env.New(settings, nil)

	mipSolver := newMIPSolverFor(p)
	nlpSolver := nlp.NewGonumAdapter()

	_, outcome := Solve(e, p, mipSolver, nlpSolver)

	assert.True(t, outcome.Finalized)
	assert.Equal(t, 1, len(e.Results.Iterations))
	assert.True(t, e.Results.BestPrimal.Found)
	assert.InDelta(t, 3, e.Results.BestPrimal.Objective, 1e-6)
	assert.InDelta(t, 3, e.Results.BestDual, 1e-6)
	assert.Equal(t, 0, e.Results.Iterations[0].HyperplanesAddedThisIteration)
}

func TestRunner_AddTask_GotoDispatch(t *testing.T) {
	p := buildLinearMILP()
	e := env.New(env.Defaults(), nil)
	r := NewRunner(e, p, newMIPSolverFor(p), nlp.NewGonumAdapter())

	var order []string
	r.AddTask(Task{Name: "first", Run: func(ctx context.Context, run *Runner) Outcome {
		order = append(order, "first")
		return ContinueAt("third")
	}})
	r.AddTask(Task{Name: "second", Run: func(ctx context.Context, run *Runner) Outcome {
		order = append(order, "second")
		return Continue()
	}})
	r.AddTask(Task{Name: "third", Run: func(ctx context.Context, run *Runner) Outcome {
		order = append(order, "third")
		return Finalize(store.ReasonAbsoluteGap)
	}})

	outcome := r.Run(context.Background())
	assert.True(t, outcome.Finalized)
	assert.Equal(t, store.ReasonAbsoluteGap, outcome.Reason)
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestAddHyperplanesAggregate_CutsOnlyArgMaxAndRecordsLinesearchPoint(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("x", shotmodel.Real, -10, 10)
	// Violated at x=4 (value 2), satisfied at x=0 (value -2); the
	// boundary lies at x=2.
	p.AddNonlinearConstraint("g", shotmodel.FuncExpression{
		F: func(x []float64) float64 { return x[0] - 2 },
	}, math.Inf(-1), 0)
	p.Objective = shotmodel.Objective{Kind: shotmodel.LinearObjective, Linear: []float64{1}}

	rp, _ := reformulate.Reformulate(p, reformulate.DefaultSettings())
	mipSolver := mip.NewBranchAndBound(1)
	mipSolver.AddVariable("x", shotmodel.Real, -10, 10)
	mipSolver.FinalizeObjective(shotmodel.Minimize, []float64{1}, 0)
	assert.NoError(t, mipSolver.FinalizeProblem())

	settings := env.Defaults()
	settings.ESH.CutMode = hyperplane.CutModeAggregate
	e := env.New(settings, nil)
	e.Results.NewIteration()

	r := &Runner{
		Env:                e,
		Reformulated:       rp,
		Hyper:              hyperplane.New(mipSolver),
		InteriorPoint:      interior.Point{X: []float64{0}},
		HasInterior:        true,
		CurrentMIPSolution: []float64{4},
	}

	out := addHyperplanesAggregate(r)

	assert.False(t, out.Finalized)
	assert.Len(t, r.Hyper.Pool(), 1)
	assert.Equal(t, hyperplane.OriginLinesearch, r.Hyper.Pool()[0].Origin)
	assert.NotNil(t, r.LastLinesearchPoint)
	assert.InDelta(t, 2, r.LastLinesearchPoint[0], 0.05)
}

func TestSelectPrimalCandidatesFromLinesearch_RecordsFeasiblePoint(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("x", shotmodel.Real, -10, 10)
	p.AddNonlinearConstraint("g", shotmodel.FuncExpression{
		F: func(x []float64) float64 { return x[0] - 2 },
	}, math.Inf(-1), 0)
	p.Objective = shotmodel.Objective{Kind: shotmodel.LinearObjective, Linear: []float64{1}}

	rp, mapping := reformulate.Reformulate(p, reformulate.DefaultSettings())
	e := env.New(env.Defaults(), nil)
	e.Results.NewIteration()

	r := &Runner{
		Env:                 e,
		Reformulated:        rp,
		Mapping:             mapping,
		LastLinesearchPoint: []float64{1.9999},
	}

	out := taskSelectPrimalCandidatesFromLinesearch(context.Background(), r)

	assert.False(t, out.Finalized)
	assert.Nil(t, r.LastLinesearchPoint)
	assert.True(t, e.Results.BestPrimal.Found)
	assert.InDelta(t, 1.9999, e.Results.BestPrimal.Objective, 1e-6)
	assert.Len(t, e.Results.Current().Pool, 1)
}

func TestSelectPrimalCandidatesFromLinesearch_NoOpWithoutAPoint(t *testing.T) {
	p := buildLinearMILP()
	rp, mapping := reformulate.Reformulate(p, reformulate.DefaultSettings())
	e := env.New(env.Defaults(), nil)
	e.Results.NewIteration()

	r := &Runner{Env: e, Reformulated: rp, Mapping: mapping}

	out := taskSelectPrimalCandidatesFromLinesearch(context.Background(), r)

	assert.False(t, out.Finalized)
	assert.False(t, e.Results.BestPrimal.Found)
}

func TestTerminationReason_SetExactlyOnce(t *testing.T) {
	p := buildLinearMILP()
	e := env.New(env.Defaults(), nil)
	_, outcome := Solve(e, p, newMIPSolverFor(p), nlp.NewGonumAdapter())

	assert.NotEqual(t, store.NotTerminated, e.Results.TerminationReason)
	assert.Equal(t, outcome.Reason, e.Results.TerminationReason)
}
