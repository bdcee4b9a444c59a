// Package rootsearch implements the bisection zero-finding procedure of
// spec §4.2: given an interior point and an exterior point, find the
// boundary crossing along their connecting segment that supporting
// hyperplanes are generated from.
package rootsearch

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// Errors mirror spec §4.2's named failure modes.
var (
	ErrInvalidInterior = errors.New("rootsearch: interior point is not strictly interior for the given constraint set")
	ErrNoViolation     = errors.New("rootsearch: exterior point does not violate any constraint in the given set")
)

// Evaluator computes the aggregate (or single-constraint) function g(x) the
// search brackets a zero of. For the constraint-aggregate form this is
// max_i f_i(x); for a single constraint it is f_c(x); for the
// objective-range form it is the scalar objective evaluator.
type Evaluator func(x []float64) float64

// Result is the bracket rootsearch converges to.
type Result struct {
	Interior []float64 // p_int', g(p_int') <= 0
	Exterior []float64 // p_ext', g(p_ext') > 0 (within ConstraintTolerance)
	Lambda   float64   // segment parameter of Exterior: Exterior = (1-Lambda)*pInt + Lambda*pExt
}

// Settings bounds the bisection.
type Settings struct {
	MaxIterations int
	LambdaTol     float64 // relative bracket-width stopping tolerance
	ConstrTol     float64 // |g(x)| stopping tolerance
}

// FindZero performs the bisection search of spec §4.2 between pInt
// (strictly interior: g(pInt) <= 0, in fact < 0) and pExt (exterior:
// g(pExt) > 0), returning a tightened bracket.
func FindZero(g Evaluator, pInt, pExt []float64, s Settings) (Result, error) {
	gInt := g(pInt)
	if gInt >= 0 {
		return Result{}, ErrInvalidInterior
	}
	gExt := g(pExt)
	if gExt <= 0 {
		return Result{}, ErrNoViolation
	}

	segLen := floats.Distance(pInt, pExt, 2)

	lo, hi := 0.0, 1.0
	x := make([]float64, len(pInt))
	lastExterior := append([]float64(nil), pExt...)
	lastInterior := append([]float64(nil), pInt...)

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	for i := 0; i < maxIter; i++ {
		lambda := 0.5 * (lo + hi)
		pointAt(x, pInt, pExt, lambda)
		val := g(x)

		width := (hi - lo) * segLen
		if width <= s.LambdaTol*segLen || (val > 0 && val <= s.ConstrTol) {
			if val <= 0 {
				lastInterior = append([]float64(nil), x...)
			} else {
				hi = lambda
				lastExterior = append([]float64(nil), x...)
			}
			return Result{Interior: lastInterior, Exterior: lastExterior, Lambda: hi}, nil
		}

		if val <= 0 {
			lo = lambda
			lastInterior = append([]float64(nil), x...)
		} else {
			hi = lambda
			lastExterior = append([]float64(nil), x...)
		}
	}

	// Nmax exhaustion: return the best bracket found so far.
	return Result{Interior: lastInterior, Exterior: lastExterior, Lambda: hi}, nil
}

func pointAt(dst, pInt, pExt []float64, lambda float64) {
	for i := range dst {
		dst[i] = (1-lambda)*pInt[i] + lambda*pExt[i]
	}
}

// ScalarEvaluator is the scalar variant's evaluator over a single
// parameter t, e.g. a segment parameter lambda or an objective value
// minus a bound.
type ScalarEvaluator func(t float64) float64

// FindZeroScalar is the second rootsearch form of spec §4.2, operating on a
// scalar objective range [objectiveLB, objectiveUB] instead of the full
// constraint set. It reuses the same bisection core via a 1-D segment
// between the two bound values.
func FindZeroScalar(f ScalarEvaluator, lb, ub float64, s Settings) (loResult, hiResult float64, err error) {
	gLo := f(lb)
	if gLo >= 0 {
		return 0, 0, ErrInvalidInterior
	}
	gHi := f(ub)
	if gHi <= 0 {
		return 0, 0, ErrNoViolation
	}

	lo, hi := lb, ub
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}
	width0 := ub - lb

	for i := 0; i < maxIter; i++ {
		mid := 0.5 * (lo + hi)
		val := f(mid)

		if (hi-lo) <= s.LambdaTol*width0 || (val > 0 && val <= s.ConstrTol) {
			return lo, hi, nil
		}

		if val <= 0 {
			lo = mid
		} else {
			hi = mid
		}
	}

	return lo, hi, nil
}
