// Package reformulate implements the Reformulator of spec §4.1: rewrites an
// original Problem into a ReformulatedProblem with one-sided nonlinear
// constraints, an epigraph-lifted objective, curvature tags, and tightened
// bounds. The bound-tightening pass is adapted from
// jjhbw-GoMILP/presolve.go's fixed-variable elimination, generalized from
// "remove a fixed variable" to "narrow a variable's box".
package reformulate

import (
	"math"

	"github.com/zeta1999/shot-go/internal/shotmodel"
)

// PointMapping is the bidirectional index mapping spec §4.1 requires
// between original and reformulated variable vectors. The reformulation
// done here only ever appends one auxiliary variable (mu, for an
// epigraph-lifted nonlinear objective), so the mapping is the identity on
// the original indices plus a single optional extra slot.
type PointMapping struct {
	muIndex int // -1 if no objective lift was needed
}

// ToReformulated maps an original-space point into reformulated space,
// computing mu from the objective if one was lifted.
func (m PointMapping) ToReformulated(reformulated *ReformulatedProblem, xOriginal []float64) []float64 {
	if m.muIndex < 0 {
		return append([]float64(nil), xOriginal...)
	}
	out := append([]float64(nil), xOriginal...)
	out = append(out, reformulated.OriginalObjective.Value(xOriginal))
	return out
}

// ToOriginal maps a reformulated-space point back to original space,
// dropping mu (spec §4.1: "Reformulate ∘ mapPointInverse = identity on
// solutions (modulo the lifted μ)").
func (m PointMapping) ToOriginal(xReformulated []float64) []float64 {
	if m.muIndex < 0 {
		return append([]float64(nil), xReformulated...)
	}
	return append([]float64(nil), xReformulated[:m.muIndex]...)
}

// ReformulatedProblem is the canonical form spec §3 describes: the
// objective is always a free linear variable (mu) bounded above by the
// original objective via an epigraph constraint if the original was
// nonlinear; every nonlinear constraint is of the form f(x) <= 0.
type ReformulatedProblem struct {
	Problem shotmodel.Problem

	// MuIndex is the index of the epigraph variable, or -1 if the
	// original objective was already linear (no lift was necessary).
	MuIndex int

	// OriginalObjective is kept so PointMapping can recompute mu for an
	// arbitrary original-space point.
	OriginalObjective shotmodel.Expression

	// LinearConstraints, QuadraticConstraints, NonlinearConstraints
	// partition Problem.Constraints by kind, for components that only
	// care about one partition (spec §3 ReformulatedProblem invariant).
	LinearConstraints    []int
	QuadraticConstraints []int
	NonlinearConstraints []int

	// ConvexNonlinear holds the indices of nonlinear constraints flagged
	// eligible for supporting-hyperplane cuts.
	ConvexNonlinear []int
}

// Settings bounds the bound-tightening fixed-point iteration.
type Settings struct {
	BoundTighteningMaxPasses int
}

func DefaultSettings() Settings { return Settings{BoundTighteningMaxPasses: 10} }

// Reformulate implements spec §4.1's `reformulate` operation.
func Reformulate(p shotmodel.Problem, s Settings) (*ReformulatedProblem, PointMapping) {
	rp := &ReformulatedProblem{Problem: p, MuIndex: -1}

	for i := range rp.Problem.Constraints {
		c := &rp.Problem.Constraints[i]
		switch c.Kind {
		case shotmodel.LinearConstraint:
			rp.LinearConstraints = append(rp.LinearConstraints, i)
			c.Curvature = shotmodel.CurvatureLinear
		case shotmodel.QuadraticConstraint:
			rp.QuadraticConstraints = append(rp.QuadraticConstraints, i)
			c.Curvature = classifyQuadratic(c.Quadratic)
		case shotmodel.NonlinearConstraint:
			normalizeOneSided(c)
			c.Curvature = classifyNonlinear(c, p)
			rp.NonlinearConstraints = append(rp.NonlinearConstraints, i)
			if c.Curvature == shotmodel.CurvatureConvex {
				rp.ConvexNonlinear = append(rp.ConvexNonlinear, i)
			}
		}
	}

	mapping := PointMapping{muIndex: -1}

	if rp.Problem.Objective.Kind == shotmodel.NonlinearObjective {
		mu := rp.Problem.AddVariable("_mu_epigraph", shotmodel.Real, math.Inf(-1), math.Inf(1))
		rp.MuIndex = mu
		rp.OriginalObjective = rp.Problem.Objective.Expr
		mapping.muIndex = mu

		expr := rp.Problem.Objective.Expr
		epigraph := shotmodel.FuncExpression{
			F: func(x []float64) float64 {
				return expr.Value(x[:mu]) - x[mu]
			},
		}
		idx := rp.Problem.AddNonlinearConstraint("_epigraph", epigraph, math.Inf(-1), 0)
		c := &rp.Problem.Constraints[idx]
		c.Curvature = shotmodel.CurvatureConvex
		rp.NonlinearConstraints = append(rp.NonlinearConstraints, idx)
		rp.ConvexNonlinear = append(rp.ConvexNonlinear, idx)

		rp.Problem.Objective = shotmodel.Objective{
			Kind:   shotmodel.LinearObjective,
			Sense:  rp.Problem.Objective.Sense,
			Linear: unitVector(mu+1, mu),
		}
	}

	tightenBounds(rp, s.BoundTighteningMaxPasses)

	return rp, mapping
}

// normalizeOneSided rewrites L <= f(x) <= U into the one-sided form the
// rest of the engine expects (spec §4.1: "normalizes sides so violations
// are one-sided"). Upper-bounded constraints become f(x) - U <= 0;
// lower-bounded-only constraints are represented as L - f(x) <= 0 by
// negating the evaluator. A two-sided constraint also becomes
// f(x) - U <= 0 with Upper set to 0; its Lower keeps L, relative to the
// original f, and is not part of Expr, so the lower side is neither cut by
// the Hyperplane Engine nor checked by the violation checks that read Expr.
func normalizeOneSided(c *shotmodel.Constraint) {
	if math.IsInf(c.Upper, 1) && !math.IsInf(c.Lower, -1) {
		inner := c.Expr
		lower := c.Lower
		c.Expr = negatedExpression{inner: inner, offset: lower}
		c.Upper = 0
		c.Lower = math.Inf(-1)
		return
	}
	if !math.IsInf(c.Upper, 1) {
		inner := c.Expr
		upper := c.Upper
		c.Expr = shotmodel.FuncExpression{F: func(x []float64) float64 { return inner.Value(x) - upper }}
		c.Upper = 0
	}
}

// negatedExpression represents L - f(x) <= 0, i.e. the constraint f(x) >=
// L rewritten one-sided, preserving an analytical gradient when inner
// supplies one.
type negatedExpression struct {
	inner  shotmodel.Expression
	offset float64
}

func (n negatedExpression) Value(x []float64) float64 { return n.offset - n.inner.Value(x) }
func (n negatedExpression) Gradient(x []float64) []float64 {
	g := n.inner.Gradient(x)
	out := make([]float64, len(g))
	for i, v := range g {
		out[i] = -v
	}
	return out
}
func (n negatedExpression) IntervalRange(lb, ub []float64) (lo, hi float64) {
	innerLo, innerHi := n.inner.IntervalRange(lb, ub)
	return n.offset - innerHi, n.offset - innerLo
}

// classifyQuadratic tags a quadratic form by the sign of its Q matrix's
// diagonal (a cheap, not-fully-rigorous stand-in for full eigenvalue
// analysis — adequate to distinguish the common convex/concave/indefinite
// cases this engine is meant to exercise; see classifyNonlinear for the
// general nonlinear case).
func classifyQuadratic(q *shotmodel.QuadraticForm) shotmodel.Curvature {
	if q == nil {
		return shotmodel.CurvatureLinear
	}
	allNonNeg, allNonPos := true, true
	for i := range q.Q {
		d := q.Q[i][i]
		if d < 0 {
			allNonNeg = false
		}
		if d > 0 {
			allNonPos = false
		}
	}
	switch {
	case allNonNeg:
		return shotmodel.CurvatureConvex
	case allNonPos:
		return shotmodel.CurvatureConcave
	default:
		return shotmodel.CurvatureIndeterminate
	}
}

// classifyNonlinear samples the expression's Hessian sign behaviour via
// axis-wise second differences at the midpoint of the variable box only
// (axes with an infinite bound are skipped). This is the
// documented approximation spec §4.1 allows in place of full
// factorable-function interval analysis: "indeterminate curvature is not
// fatal" and such constraints remain cuttable but without a correctness
// guarantee.
func classifyNonlinear(c *shotmodel.Constraint, p shotmodel.Problem) shotmodel.Curvature {
	lb, ub := p.Bounds()
	mid := make([]float64, len(lb))
	for i := range lb {
		loi, hii := lb[i], ub[i]
		if math.IsInf(loi, -1) || math.IsInf(hii, 1) {
			mid[i] = 0
			continue
		}
		mid[i] = (loi + hii) / 2
	}

	const h = 1e-3
	convexVotes, concaveVotes := 0, 0
	f0 := c.Expr.Value(mid)
	for i := range mid {
		if math.IsInf(lb[i], -1) || math.IsInf(ub[i], 1) {
			continue
		}
		step := h * (ub[i] - lb[i])
		if step == 0 {
			continue
		}
		xp := append([]float64(nil), mid...)
		xm := append([]float64(nil), mid...)
		xp[i] += step
		xm[i] -= step
		fp := c.Expr.Value(xp)
		fm := c.Expr.Value(xm)
		second := fp - 2*f0 + fm
		switch {
		case second > 1e-9:
			convexVotes++
		case second < -1e-9:
			concaveVotes++
		}
	}

	switch {
	case convexVotes > 0 && concaveVotes == 0:
		return shotmodel.CurvatureConvex
	case concaveVotes > 0 && convexVotes == 0:
		return shotmodel.CurvatureConcave
	case convexVotes == 0 && concaveVotes == 0:
		return shotmodel.CurvatureLinear
	default:
		return shotmodel.CurvatureIndeterminate
	}
}

// tightenBounds narrows variable bounds using each linear constraint's row,
// iterated to a fixed point or maxPasses, adapted from
// jjhbw-GoMILP/presolve.go's filterFixedVars (there: eliminate a variable
// once its bounds collapse to a point; here: narrow bounds toward that
// point without necessarily reaching it).
func tightenBounds(rp *ReformulatedProblem, maxPasses int) {
	if maxPasses <= 0 {
		maxPasses = 1
	}
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, ci := range rp.LinearConstraints {
			c := rp.Problem.Constraints[ci]
			for j, coeff := range c.Linear {
				if coeff == 0 {
					continue
				}
				lo, hi := rowBound(c, j, rp.Problem)
				if lo > rp.Problem.Variables[j].Lower || hi < rp.Problem.Variables[j].Upper {
					rp.Problem.TightenBound(j, lo, hi)
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
}

// rowBound derives an implied [lo, hi] bound on variable j from constraint
// c's row, holding every other variable at its current bound (standard
// single-row bound propagation).
func rowBound(c shotmodel.Constraint, j int, p shotmodel.Problem) (lo, hi float64) {
	coeffJ := c.Linear[j]
	if coeffJ == 0 {
		return math.Inf(-1), math.Inf(1)
	}

	minOther, maxOther := 0.0, 0.0
	for k, coeff := range c.Linear {
		if k == j || coeff == 0 {
			continue
		}
		v := p.Variables[k]
		if coeff > 0 {
			minOther += coeff * v.Lower
			maxOther += coeff * v.Upper
		} else {
			minOther += coeff * v.Upper
			maxOther += coeff * v.Lower
		}
	}

	// c.Lower <= coeffJ*x_j + other <= c.Upper
	lo1 := (c.Lower - maxOther) / coeffJ
	hi1 := (c.Upper - minOther) / coeffJ
	if coeffJ < 0 {
		lo1, hi1 = hi1, lo1
	}
	return lo1, hi1
}

func unitVector(n, idx int) []float64 {
	v := make([]float64, n)
	v[idx] = 1
	return v
}
