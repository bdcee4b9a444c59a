// Package nlp implements the NLP Solver Adapter of spec §6: a capability
// interface consumed by the primal-bounding and interior-point subsystems,
// plus a default gradient-based implementation on gonum/optimize.
package nlp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/zeta1999/shot-go/internal/shotmodel"
)

// Status mirrors the NLP adapter's solve status (spec §6).
type Status int

const (
	StatusOptimal Status = iota
	StatusFeasible
	StatusInfeasible
	StatusError
	StatusLimit
)

var ErrNoProblemSet = errors.New("nlp: setProblem has not been called")

// Problem is the continuous NLP the adapter solves: minimize f(x) over
// lower <= x <= upper, where f wraps the reformulated problem's objective
// (possibly with discrete variables fixed by the caller via bound
// tightening — see internal/primal and internal/dual).
type Problem struct {
	N      int
	Lower  []float64
	Upper  []float64
	Value  func(x []float64) float64
	Grad   func(x []float64) []float64
	// Constraints, if any, additional to the box, in g(x) <= 0 form.
	// GonumAdapter does not enforce them during the minimization; it only
	// checks them at the returned point and reports StatusInfeasible when
	// one exceeds its tolerance.
	Constraints []shotmodel.Expression
}

// Solver is the capability interface the core consumes (spec §6).
type Solver interface {
	SetProblem(p Problem)
	SetStartingPoint(indices []int, values []float64)
	FixVariables(indices []int, values []float64)
	UnfixVariables()
	Solve() (Status, error)
	GetSolution() []float64
	GetObjectiveValue() float64
	GetVariableLowerBounds() []float64
	GetVariableUpperBounds() []float64
}

// GonumAdapter is the default NLP adapter, built on gonum/optimize's
// gradient-based local minimization (grounded on the gonum/optimize/nlls
// package's Levenberg-Marquardt wrapper pattern from the retrieval pack,
// adapted here to a generic smooth minimization rather than least-squares).
type GonumAdapter struct {
	problem Problem
	start   []float64

	fixedIndices []int
	fixedSaved   [][2]float64

	lastX      []float64
	lastObj    float64
	lastStatus Status
}

func NewGonumAdapter() *GonumAdapter {
	return &GonumAdapter{}
}

func (a *GonumAdapter) SetProblem(p Problem) {
	a.problem = p
	a.start = make([]float64, p.N)
	for i := range a.start {
		lo, hi := p.Lower[i], p.Upper[i]
		switch {
		case math.IsInf(lo, -1) && math.IsInf(hi, 1):
			a.start[i] = 0
		case math.IsInf(lo, -1):
			a.start[i] = hi
		case math.IsInf(hi, 1):
			a.start[i] = lo
		default:
			a.start[i] = (lo + hi) / 2
		}
	}
}

func (a *GonumAdapter) SetStartingPoint(indices []int, values []float64) {
	for k, idx := range indices {
		a.start[idx] = values[k]
	}
}

// FixVariables tightens the given variables' box bounds to a point value
// and re-seeds the starting point there, the way the MIP adapter's
// FixVariables does (spec §4.7's dual repair fixes discrete variables on
// the MIP side; the primal-bounding heuristic of §4.6 fixes them here, on
// the NLP side, for the same reason).
func (a *GonumAdapter) FixVariables(indices []int, values []float64) {
	a.fixedIndices = append([]int(nil), indices...)
	a.fixedSaved = make([][2]float64, len(indices))
	for k, idx := range indices {
		a.fixedSaved[k] = [2]float64{a.problem.Lower[idx], a.problem.Upper[idx]}
		a.problem.Lower[idx] = values[k]
		a.problem.Upper[idx] = values[k]
		a.start[idx] = values[k]
	}
}

func (a *GonumAdapter) UnfixVariables() {
	for k, idx := range a.fixedIndices {
		a.problem.Lower[idx] = a.fixedSaved[k][0]
		a.problem.Upper[idx] = a.fixedSaved[k][1]
	}
	a.fixedIndices = nil
	a.fixedSaved = nil
}

// Solve runs L-BFGS from the current starting point, clamping to the box
// bounds on every function/gradient evaluation (gonum/optimize's Problem
// type has no native box-constraint support, so the clamp is applied at
// the evaluation boundary, the simplest faithful approximation of a bound
// constrained solve without adding a QP/active-set layer). Only Value is
// minimized; Problem.Constraints are checked at the result, not enforced
// during the search.
func (a *GonumAdapter) Solve() (Status, error) {
	if a.problem.Value == nil {
		return StatusError, ErrNoProblemSet
	}

	clamp := func(x []float64) []float64 {
		y := make([]float64, len(x))
		for i, v := range x {
			lo, hi := a.problem.Lower[i], a.problem.Upper[i]
			if v < lo {
				v = lo
			}
			if v > hi {
				v = hi
			}
			y[i] = v
		}
		return y
	}

	optProblem := optimize.Problem{
		Func: func(x []float64) float64 {
			return a.problem.Value(clamp(x))
		},
	}
	if a.problem.Grad != nil {
		optProblem.Grad = func(grad, x []float64) {
			g := a.problem.Grad(clamp(x))
			copy(grad, g)
		}
	}

	result, err := optimize.Minimize(optProblem, a.start, nil, nil)
	if err != nil && result == nil {
		a.lastStatus = StatusError
		return a.lastStatus, err
	}

	x := clamp(result.X)
	a.lastX = x
	a.lastObj = a.problem.Value(x)
	a.start = x

	if !a.feasible(x) {
		a.lastStatus = StatusInfeasible
		return a.lastStatus, nil
	}

	a.lastStatus = StatusOptimal
	return a.lastStatus, nil
}

func (a *GonumAdapter) feasible(x []float64) bool {
	const tol = 1e-6
	for _, c := range a.problem.Constraints {
		if c.Value(x) > tol {
			return false
		}
	}
	return true
}

func (a *GonumAdapter) GetSolution() []float64          { return a.lastX }
func (a *GonumAdapter) GetObjectiveValue() float64      { return a.lastObj }
func (a *GonumAdapter) GetVariableLowerBounds() []float64 { return a.problem.Lower }
func (a *GonumAdapter) GetVariableUpperBounds() []float64 { return a.problem.Upper }
