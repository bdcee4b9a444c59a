// Package shotmodel holds the problem data model: variables, constraints,
// the objective, and the curvature/expression abstractions the rest of the
// engine is built against.
package shotmodel

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
)

// VariableKind is the domain a Variable ranges over.
type VariableKind int

const (
	Real VariableKind = iota
	Binary
	Integer
	SemiContinuous
)

// Variable is a single decision variable. Index is stable and dense within
// a Problem once added.
type Variable struct {
	Index int
	Name  string
	Kind  VariableKind
	Lower float64
	Upper float64
}

// IsDiscrete reports whether the variable must take integer values.
func (v Variable) IsDiscrete() bool {
	return v.Kind == Binary || v.Kind == Integer
}

// Sense is the direction of optimization.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// ObjectiveKind distinguishes the three representations an objective may
// take before reformulation lifts it to a free linear variable.
type ObjectiveKind int

const (
	LinearObjective ObjectiveKind = iota
	QuadraticObjective
	NonlinearObjective
)

// Objective is the problem's single objective function.
type Objective struct {
	Kind  ObjectiveKind
	Sense Sense

	// Linear coefficients, dense over Problem.Variables.
	Linear []float64

	// Quadratic form: x^T Q x + a*x + Const. Q may be nil if absent.
	Quadratic *QuadraticForm
	Const     float64

	// Nonlinear handle, non-nil only when Kind == NonlinearObjective.
	Expr Expression
}

// QuadraticForm is L <= x^T Q x + a*x <= U in either a constraint or the
// objective's quadratic representation.
type QuadraticForm struct {
	Q [][]float64 // dense, symmetric, len(Variables) x len(Variables)
	A []float64   // linear part, len(Variables)
}

// ConstraintKind partitions constraints the way the Reformulator expects.
type ConstraintKind int

const (
	LinearConstraint ConstraintKind = iota
	QuadraticConstraint
	NonlinearConstraint
)

// Curvature is computed by the Reformulator for nonlinear constraints.
type Curvature int

const (
	CurvatureUnknown Curvature = iota
	CurvatureLinear
	CurvatureConvex
	CurvatureConcave
	CurvatureIndeterminate
)

// Constraint is L <= expr <= U, partitioned by Kind.
type Constraint struct {
	Index int
	Name  string
	Kind  ConstraintKind
	Lower float64
	Upper float64

	// Linear coefficients, dense over Problem.Variables; valid when
	// Kind == LinearConstraint.
	Linear []float64

	// Valid when Kind == QuadraticConstraint.
	Quadratic *QuadraticForm

	// Valid when Kind == NonlinearConstraint. Must be able to compute
	// value and gradient.
	Expr Expression

	Curvature Curvature
}

// Expression is the narrow interface the engine consumes for a nonlinear
// constraint or objective term. It stands in for the symbolic expression
// evaluator spec §9 treats as an external collaborator; FuncExpression
// below is a finite-difference-backed default good enough to exercise the
// whole pipeline without a real symbolic backend.
type Expression interface {
	// Value returns f(x).
	Value(x []float64) float64
	// Gradient returns grad f(x), dense, same length as x.
	Gradient(x []float64) []float64
	// IntervalRange returns an estimate [lo, hi] of the range of f over
	// the box [lb, ub]; whether it is a guaranteed bound depends on the
	// implementation. No part of the engine calls it at present. A
	// zero-width box collapses lo==hi==Value(mid).
	IntervalRange(lb, ub []float64) (lo, hi float64)
}

// Problem is the original, user-facing model (spec §3).
type Problem struct {
	Variables   []Variable
	Objective   Objective
	Constraints []Constraint
}

// AddVariable appends a variable and returns its stable index.
func (p *Problem) AddVariable(name string, kind VariableKind, lower, upper float64) int {
	idx := len(p.Variables)
	p.Variables = append(p.Variables, Variable{
		Index: idx,
		Name:  name,
		Kind:  kind,
		Lower: lower,
		Upper: upper,
	})
	return idx
}

// AddLinearConstraint appends L <= coeffs*x <= U.
func (p *Problem) AddLinearConstraint(name string, coeffs []float64, lower, upper float64) int {
	idx := len(p.Constraints)
	p.Constraints = append(p.Constraints, Constraint{
		Index:     idx,
		Name:      name,
		Kind:      LinearConstraint,
		Lower:     lower,
		Upper:     upper,
		Linear:    coeffs,
		Curvature: CurvatureLinear,
	})
	return idx
}

// AddNonlinearConstraint appends L <= expr(x) <= U.
func (p *Problem) AddNonlinearConstraint(name string, expr Expression, lower, upper float64) int {
	idx := len(p.Constraints)
	p.Constraints = append(p.Constraints, Constraint{
		Index: idx,
		Name:  name,
		Kind:  NonlinearConstraint,
		Lower: lower,
		Upper: upper,
		Expr:  expr,
	})
	return idx
}

// NumVariables returns len(Variables).
func (p *Problem) NumVariables() int { return len(p.Variables) }

// Bounds returns dense lower/upper bound vectors.
func (p *Problem) Bounds() (lb, ub []float64) {
	lb = make([]float64, len(p.Variables))
	ub = make([]float64, len(p.Variables))
	for i, v := range p.Variables {
		lb[i] = v.Lower
		ub[i] = v.Upper
	}
	return lb, ub
}

// TightenBound narrows a variable's bound in place. Bounds may only be
// tightened, never loosened (spec §3 invariant).
func (p *Problem) TightenBound(index int, lower, upper float64) {
	v := &p.Variables[index]
	if lower > v.Lower {
		v.Lower = lower
	}
	if upper < v.Upper {
		v.Upper = upper
	}
}

// FuncExpression adapts a plain value function into an Expression using
// central finite differences for the gradient, for constraints that don't
// carry an analytical gradient.
type FuncExpression struct {
	F  func(x []float64) float64
	EH float64 // step size; zero defaults to 1e-6
}

func (fe FuncExpression) Value(x []float64) float64 { return fe.F(x) }

func (fe FuncExpression) Gradient(x []float64) []float64 {
	h := fe.EH
	if h == 0 {
		h = 1e-6
	}
	return fd.Gradient(nil, fe.F, x, &fd.Settings{
		Formula: fd.Central,
		Step:    h,
	})
}

func (fe FuncExpression) IntervalRange(lb, ub []float64) (lo, hi float64) {
	// Coarse sampling at the lower corner, upper corner and midpoint of
	// the box; not an interval-arithmetic evaluation, so extrema elsewhere
	// in the box are missed.
	mid := make([]float64, len(lb))
	for i := range lb {
		mid[i] = (lb[i] + ub[i]) / 2
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	consider := func(x []float64) {
		v := fe.F(x)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	consider(mid)
	consider(lb)
	consider(ub)
	return lo, hi
}
