package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGonumAdapter_Solve_UnconstrainedQuadratic(t *testing.T) {
	a := NewGonumAdapter()
	a.SetProblem(Problem{
		N:     1,
		Lower: []float64{-10},
		Upper: []float64{10},
		Value: func(x []float64) float64 { return (x[0] - 3) * (x[0] - 3) },
		Grad:  func(x []float64) []float64 { return []float64{2 * (x[0] - 3)} },
	})

	status, err := a.Solve()
	assert.NoError(t, err)
	assert.Equal(t, StatusOptimal, status)
	assert.InDelta(t, 3, a.GetSolution()[0], 1e-2)
}

func TestGonumAdapter_FixVariables_ClampsToPoint(t *testing.T) {
	a := NewGonumAdapter()
	a.SetProblem(Problem{
		N:     2,
		Lower: []float64{-10, -10},
		Upper: []float64{10, 10},
		Value: func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
		Grad:  func(x []float64) []float64 { return []float64{2 * x[0], 2 * x[1]} },
	})

	a.FixVariables([]int{0}, []float64{5})
	status, err := a.Solve()
	assert.NoError(t, err)
	assert.Equal(t, StatusOptimal, status)
	assert.InDelta(t, 5, a.GetSolution()[0], 1e-6)
	assert.InDelta(t, 0, a.GetSolution()[1], 1e-2)

	a.UnfixVariables()
	assert.Equal(t, -10.0, a.GetVariableLowerBounds()[0])
	assert.Equal(t, 10.0, a.GetVariableUpperBounds()[0])
}
