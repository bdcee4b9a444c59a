package mip

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// subProblem is one node of the branch-and-bound enumeration tree. It is
// adapted from jjhbw-GoMILP/subproblem.go: the original's static G/h
// (variable bounds only) is generalized to also carry the current dynamic
// hyperplane rows, since those are appended incrementally across solver
// iterations rather than fixed at construction.
type subProblem struct {
	id     int64
	parent int64

	// Shared, read-only base problem data: should not be modified by any
	// subProblem derived from it.
	c []float64
	A *mat.Dense
	b []float64
	G *mat.Dense
	h []float64

	integralityConstraints []bool
	branchHeuristic        BranchHeuristic

	// Additional inequality constraints accumulated by branch-and-bound
	// descent. Each step down adds one.
	bnbConstraints []bnbConstraint
}

type bnbConstraint struct {
	branchedVariable int
	hsharp           float64
	gsharp           []float64
}

type solution struct {
	problem *subProblem
	x       []float64
	z       float64
	err     error
}

var expectedFailures = map[error]bnbDecision{
	lp.ErrInfeasible: subproblemNotFeasible,
	lp.ErrSingular:   subproblemDegenerate,
}

// combineInequalities merges the base G/h with the node's bnb constraints.
func (p subProblem) combineInequalities() (*mat.Dense, []float64) {
	if len(p.bnbConstraints) == 0 {
		if p.G != nil {
			return mat.DenseCopyOf(p.G), p.h
		}
		return nil, nil
	}

	h := append([]float64(nil), p.h...)
	var bnbGvects []float64
	for _, constr := range p.bnbConstraints {
		bnbGvects = append(bnbGvects, constr.gsharp...)
		h = append(h, constr.hsharp)
	}
	bnbG := mat.NewDense(len(p.bnbConstraints), len(p.c), bnbGvects)

	if p.G == nil || p.G.IsZero() {
		return bnbG, h
	}

	origRows, _ := p.G.Dims()
	bnbRows, _ := bnbG.Dims()
	Gnew := mat.NewDense(origRows+bnbRows, len(p.c), nil)
	Gnew.Stack(p.G, bnbG)

	return Gnew, h
}

// convertToEqualities rewrites G*x <= h as A*x = b by introducing one
// nonnegative slack variable per inequality row.
func convertToEqualities(c []float64, A *mat.Dense, b []float64, G *mat.Dense, h []float64) (cNew []float64, aNew *mat.Dense, bNew []float64) {
	if G == nil {
		panic("mip: convertToEqualities called with nil G")
	}
	if insane := sanityCheckDimensions(c, A, b, G, h); insane != nil {
		panic(insane)
	}

	nVar := len(c)
	nCons := len(b)
	nIneq := len(h)
	nNewVar := nVar + nIneq
	nNewCons := nCons + nIneq

	cNew = make([]float64, nNewVar)
	copy(cNew, c)

	bNew = make([]float64, nNewCons)
	copy(bNew, b)
	copy(bNew[nCons:], h)

	aNew = mat.NewDense(nNewCons, nNewVar, nil)
	if A != nil {
		aNew.Slice(0, nCons, 0, nVar).(*mat.Dense).Copy(A)
	}
	aNew.Slice(nCons, nNewCons, 0, nVar).(*mat.Dense).Copy(G)

	bottomRight := aNew.Slice(nCons, nNewCons, nVar, nVar+nIneq).(*mat.Dense)
	for i := 0; i < nIneq; i++ {
		bottomRight.Set(i, i, 1)
	}

	return
}

func (p subProblem) solve() solution {
	G, h := p.combineInequalities()

	var z float64
	var x []float64
	var err error

	if G != nil {
		c, A, b := convertToEqualities(p.c, p.A, p.b, G, h)
		z, x, err = lp.Simplex(c, A, b, 0, nil)
		if err == nil && len(x) != len(p.c) {
			x = x[:len(p.c)]
		}
	} else {
		z, x, err = lp.Simplex(p.c, p.A, p.b, 0, nil)
	}

	return solution{problem: &p, x: x, z: z, err: err}
}

// branch splits the solution into two subproblems along the branching
// variable selected by the node's heuristic.
func (s solution) branch() (p1, p2 subProblem) {
	branchOn := 0
	switch s.problem.branchHeuristic {
	case BranchMaxFun:
		branchOn = maxFunBranchPoint(s.problem.c, s.problem.integralityConstraints)
	case BranchMostInfeasible:
		branchOn = mostInfeasibleBranchPoint(s.x, s.problem.integralityConstraints)
	case BranchNaive:
		branchOn = s.naiveBranchPoint()
	default:
		panic("mip: unknown branching heuristic")
	}

	currentCoeff := s.x[branchOn]

	p1 = s.problem.getChild(branchOn, 1, math.Floor(currentCoeff))
	p2 = s.problem.getChild(branchOn, -1, -(math.Floor(currentCoeff) + 1))

	p1.id = 2*s.problem.id + 1
	p2.id = 2*s.problem.id + 2
	p1.parent = s.problem.id
	p2.parent = s.problem.id

	return
}

func (p subProblem) getChild(branchOn int, factor float64, smallerOrEqualThan float64) subProblem {
	child := p.copy()
	newConstraint := bnbConstraint{
		branchedVariable: branchOn,
		hsharp:           smallerOrEqualThan,
		gsharp:           make([]float64, len(p.c)),
	}
	newConstraint.gsharp[branchOn] = factor
	child.bnbConstraints = append(child.bnbConstraints, newConstraint)
	return child
}

func (p *subProblem) copy() subProblem {
	newP := subProblem{
		id:                     p.id,
		parent:                 p.parent,
		c:                      p.c,
		A:                      p.A,
		b:                      p.b,
		G:                      p.G,
		h:                      p.h,
		branchHeuristic:        p.branchHeuristic,
		integralityConstraints: p.integralityConstraints,
		bnbConstraints:         make([]bnbConstraint, len(p.bnbConstraints)),
	}
	copy(newP.bnbConstraints, p.bnbConstraints)
	return newP
}

func sanityCheckDimensions(c []float64, A *mat.Dense, b []float64, G *mat.Dense, h []float64) error {
	if G == nil && A == nil {
		return errors.New("mip: no constraint matrices provided")
	}
	if G != nil {
		if h == nil {
			return errors.New("mip: h vector is nil while G matrix is provided")
		}
		rG, cG := G.Dims()
		if rG != len(h) {
			return errors.New("mip: number of rows in G does not match length of h")
		}
		if cG != len(c) {
			return errors.New("mip: number of columns in G does not match number of variables")
		}
	}
	if h != nil && G == nil {
		return errors.New("mip: G matrix is nil while h vector is provided")
	}
	if A != nil {
		rA, cA := A.Dims()
		if rA != len(b) {
			return errors.New("mip: number of rows in A does not match length of b")
		}
		if cA != len(c) {
			return errors.New("mip: number of columns in A does not match number of variables")
		}
	}
	if b != nil && A == nil {
		return errors.New("mip: A matrix is nil while b vector is provided")
	}
	return nil
}

// feasibleForIP reports whether x satisfies all integrality constraints
// within numeric tolerance.
func feasibleForIP(integralityConstraints []bool, x []float64, tol float64) bool {
	for i, isInt := range integralityConstraints {
		if !isInt {
			continue
		}
		_, frac := math.Modf(x[i])
		if frac > tol && frac < 1-tol {
			return false
		}
	}
	return true
}
