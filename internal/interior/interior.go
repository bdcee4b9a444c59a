// Package interior implements the Interior-Point Finder of spec §4.2's
// companion requirement: producing a strictly-interior point of the
// reformulated feasible region (or the least-infeasible point, when none is
// strictly interior) by solving a minimax NLP
//
//	minimize  t
//	subject to  f_i(x) - t <= 0   for every nonlinear constraint i
//	            lower <= x <= upper
//
// Grounded on original_source/src/OptProblems/OptProblemNLPMinimax.cpp's
// minimax reformulation, solved here through the project's own NLP Solver
// Adapter (internal/nlp) rather than a bespoke SQP, the same substitution
// the rest of the engine makes wherever the original hand-rolled a solver.
package interior

import (
	"errors"
	"math"

	"github.com/zeta1999/shot-go/internal/nlp"
	"github.com/zeta1999/shot-go/internal/reformulate"
	"github.com/zeta1999/shot-go/internal/shotmodel"
)

var ErrNoNonlinearConstraints = errors.New("interior: problem has no nonlinear constraints to search for an interior point of")

// Point is the result of a search: X in original-model space (including
// mu, if present) and MaxViolation, the worst constraint value at X (< 0
// means X is strictly interior).
type Point struct {
	X            []float64
	MaxViolation float64
}

// Settings bounds the minimax solve.
type Settings struct {
	// TInitialMargin seeds the minimax auxiliary variable's starting value
	// below the worst constraint value at the box midpoint, nudging the
	// solver to look for a genuinely negative (interior) minimum rather
	// than stalling at zero.
	TInitialMargin float64
}

func DefaultSettings() Settings { return Settings{TInitialMargin: 1.0} }

// Find solves the minimax NLP over rp's nonlinear constraints and returns
// the best point found. The minimax objective has no x component in its
// gradient, and nlp.GonumAdapter does not enforce Constraints during the
// search, so with that adapter X stays at its starting point (the box
// midpoint) and MaxViolation is the worst constraint value there. solver
// is reset (SetProblem) on every call, so
// callers may reuse a single nlp.Solver instance across Find calls for
// different reformulated problems.
func Find(rp *reformulate.ReformulatedProblem, solver nlp.Solver, s Settings) (Point, error) {
	if len(rp.NonlinearConstraints) == 0 {
		return Point{}, ErrNoNonlinearConstraints
	}

	n := len(rp.Problem.Variables)
	lb, ub := rp.Problem.Bounds()

	// t is appended as one extra free variable at index n.
	tIndex := n
	fullLower := append(append([]float64(nil), lb...), math.Inf(-1))
	fullUpper := append(append([]float64(nil), ub...), math.Inf(1))

	constraints := make([]shotmodel.Expression, 0, len(rp.NonlinearConstraints))
	for _, ci := range rp.NonlinearConstraints {
		expr := rp.Problem.Constraints[ci].Expr
		constraints = append(constraints, minimaxConstraint{inner: expr, tIndex: tIndex, n: n})
	}

	problem := nlp.Problem{
		N:     n + 1,
		Lower: fullLower,
		Upper: fullUpper,
		Value: func(x []float64) float64 { return x[tIndex] },
		Grad: func(x []float64) []float64 {
			g := make([]float64, len(x))
			g[tIndex] = 1
			return g
		},
		Constraints: constraints,
	}
	solver.SetProblem(problem)

	worst := worstViolation(rp, midpoint(lb, ub))
	solver.SetStartingPoint([]int{tIndex}, []float64{worst - s.TInitialMargin})

	status, err := solver.Solve()
	if err != nil {
		return Point{}, err
	}

	x := solver.GetSolution()
	if x == nil {
		return Point{}, errors.New("interior: solver returned no solution")
	}

	xOriginal := append([]float64(nil), x[:n]...)
	maxV := worstViolation(rp, xOriginal)

	if status == nlp.StatusError {
		return Point{}, errors.New("interior: nlp solve errored")
	}

	return Point{X: xOriginal, MaxViolation: maxV}, nil
}

// minimaxConstraint wraps a single original constraint's expression as
// f(x) - t <= 0 over the extended [x..., t] vector.
type minimaxConstraint struct {
	inner  shotmodel.Expression
	tIndex int
	n      int
}

func (m minimaxConstraint) Value(xt []float64) float64 {
	return m.inner.Value(xt[:m.n]) - xt[m.tIndex]
}

func (m minimaxConstraint) Gradient(xt []float64) []float64 {
	inner := m.inner.Gradient(xt[:m.n])
	g := make([]float64, len(xt))
	copy(g, inner)
	g[m.tIndex] = -1
	return g
}

func (m minimaxConstraint) IntervalRange(lb, ub []float64) (lo, hi float64) {
	innerLo, innerHi := m.inner.IntervalRange(lb[:m.n], ub[:m.n])
	return innerLo - ub[m.tIndex], innerHi - lb[m.tIndex]
}

func worstViolation(rp *reformulate.ReformulatedProblem, x []float64) float64 {
	worst := math.Inf(-1)
	for _, ci := range rp.NonlinearConstraints {
		v := rp.Problem.Constraints[ci].Expr.Value(x)
		if v > worst {
			worst = v
		}
	}
	return worst
}

func midpoint(lb, ub []float64) []float64 {
	x := make([]float64, len(lb))
	for i := range x {
		lo, hi := lb[i], ub[i]
		switch {
		case math.IsInf(lo, -1) && math.IsInf(hi, 1):
			x[i] = 0
		case math.IsInf(lo, -1):
			x[i] = hi
		case math.IsInf(hi, 1):
			x[i] = lo
		default:
			x[i] = (lo + hi) / 2
		}
	}
	return x
}
