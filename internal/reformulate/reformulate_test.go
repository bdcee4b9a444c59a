package reformulate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeta1999/shot-go/internal/shotmodel"
)

func TestReformulate_LiftsNonlinearObjective(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("x", shotmodel.Real, 0, 10)
	p.Objective = shotmodel.Objective{
		Kind:  shotmodel.NonlinearObjective,
		Sense: shotmodel.Minimize,
		Expr:  shotmodel.FuncExpression{F: func(x []float64) float64 { return x[0] * x[0] }},
	}

	rp, mapping := Reformulate(p, DefaultSettings())

	assert.GreaterOrEqual(t, rp.MuIndex, 1)
	assert.Equal(t, shotmodel.LinearObjective, rp.Problem.Objective.Kind)
	assert.Len(t, rp.ConvexNonlinear, 1)

	xOriginal := []float64{3}
	xFull := mapping.ToReformulated(rp, xOriginal)
	assert.InDelta(t, 9, xFull[rp.MuIndex], 1e-9)

	back := mapping.ToOriginal(xFull)
	assert.Equal(t, xOriginal, back)
}

func TestReformulate_NoLiftForLinearObjective(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("x", shotmodel.Real, 0, 10)
	p.Objective = shotmodel.Objective{Kind: shotmodel.LinearObjective, Linear: []float64{1}}

	rp, mapping := Reformulate(p, DefaultSettings())

	assert.Equal(t, -1, rp.MuIndex)
	x := []float64{4}
	assert.Equal(t, x, mapping.ToReformulated(rp, x))
}

func TestNormalizeOneSided_LowerOnlyConstraint(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("x", shotmodel.Real, -10, 10)
	expr := shotmodel.FuncExpression{F: func(x []float64) float64 { return x[0] }}
	p.AddNonlinearConstraint("c", expr, 2, math.Inf(1))

	rp, _ := Reformulate(p, DefaultSettings())

	c := rp.Problem.Constraints[0]
	assert.Equal(t, 0.0, c.Upper)
	// original constraint was x >= 2, i.e. one-sided form is 2 - x <= 0
	assert.InDelta(t, -3, c.Expr.Value([]float64{5}), 1e-9)
}

func TestTightenBounds_PropagatesLinearRow(t *testing.T) {
	var p shotmodel.Problem
	p.AddVariable("x", shotmodel.Real, 0, 100)
	p.AddVariable("y", shotmodel.Real, 0, 100)
	// x + y <= 10, so with y >= 0, x <= 10.
	p.AddLinearConstraint("c", []float64{1, 1}, math.Inf(-1), 10)
	p.Objective = shotmodel.Objective{Kind: shotmodel.LinearObjective, Linear: []float64{1, 0}}

	rp, _ := Reformulate(p, DefaultSettings())

	assert.LessOrEqual(t, rp.Problem.Variables[0].Upper, 10.0)
	assert.LessOrEqual(t, rp.Problem.Variables[1].Upper, 10.0)
}
