// Package hyperplane implements the Hyperplane Engine of spec §4.4:
// converting a (constraint, point) pair into a valid linear cut, deduping
// within an iteration, and recording provenance. Cuts are installed into a
// mip.Solver the same way jjhbw-GoMILP/subproblem.go's bnbConstraint rows
// are appended incrementally to the relaxation, generalized from
// branch-and-bound splits to supporting-hyperplane cuts.
package hyperplane

import (
	"math"

	"github.com/zeta1999/shot-go/internal/mip"
	"github.com/zeta1999/shot-go/internal/shotmodel"
)

// CutMode selects how a violated constraint set is turned into cuts for
// one iteration: PerConstraint generates one hyperplane per violated
// constraint (the ECP/per-constraint default); Aggregate generates a
// single hyperplane for the arg-max-violated constraint found along an
// aggregate linesearch (spec §4.4's aggregate tie-break).
type CutMode int

const (
	CutModePerConstraint CutMode = iota
	CutModeAggregate
)

// Origin tags where a hyperplane was generated from (spec §3).
type Origin int

const (
	OriginMIPSolution Origin = iota
	OriginLinesearch
	OriginInteriorExteriorRootsearch
	OriginNLPInfeasible
	OriginObjectiveLift
	OriginLPFixedIntegers
)

// Hyperplane is the half-space g.x <= -c generated from a constraint and a
// point (spec §3). Once created it is never mutated.
type Hyperplane struct {
	SourceConstraint int
	Point            []float64
	Gradient         []float64
	Constant         float64
	Origin           Origin
}

// quantKey rounds a point to a fixed number of decimal digits for use as a
// deduplication key, the simplest faithful reading of spec §4.4's
// "quantized x*".
func quantKey(constraintIndex int, x []float64) string {
	const scale = 1e6
	b := make([]byte, 0, len(x)*8+8)
	b = appendInt(b, constraintIndex)
	for _, v := range x {
		q := int64(math.Round(v * scale))
		b = appendInt(b, int(q))
	}
	return string(b)
}

func appendInt(b []byte, v int) []byte {
	b = append(b, ':')
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	return b
}

// Engine owns the canonical hyperplane pool and generates/installs cuts
// against a mip.Solver.
type Engine struct {
	solver mip.Solver
	seen   map[string]bool
	pool   []Hyperplane
}

// New returns an Engine that installs cuts into solver.
func New(solver mip.Solver) *Engine {
	return &Engine{solver: solver, seen: make(map[string]bool)}
}

// Pool returns every hyperplane ever generated, in generation order.
func (e *Engine) Pool() []Hyperplane { return e.pool }

// Generate computes g = grad f_c(x*), constant = f_c(x*) - g.x* for
// constraint c at point x, installs the cut g.x <= -constant into the
// solver unless an equivalent cut (same constraint, quantized point) was
// already generated by this Engine (the record is never cleared), and
// returns the resulting Hyperplane
// (or the empty value and false if it was a duplicate).
func (e *Engine) Generate(c *shotmodel.Constraint, x []float64, origin Origin) (Hyperplane, bool) {
	key := quantKey(c.Index, x)
	if e.seen[key] {
		return Hyperplane{}, false
	}
	e.seen[key] = true

	g := c.Expr.Gradient(x)
	fVal := c.Expr.Value(x)
	constant := fVal - dot(g, x)

	hp := Hyperplane{
		SourceConstraint: c.Index,
		Point:            append([]float64(nil), x...),
		Gradient:         g,
		Constant:         constant,
		Origin:           origin,
	}

	e.solver.AddHyperplane(g, -constant)
	e.pool = append(e.pool, hp)
	return hp, true
}

// GenerateObjectiveLift installs the symmetric epigraph cut for a
// nonlinear objective lifted to a free variable mu: mu >= linearization at
// x, i.e. g.x - mu <= -constant where g, constant come from the objective
// expression. muIndex is mu's index in the solver's variable vector.
func (e *Engine) GenerateObjectiveLift(obj shotmodel.Expression, x []float64, muIndex int) (Hyperplane, bool) {
	key := quantKey(-1, x) // constraint index -1 reserved for the objective lift
	if e.seen[key] {
		return Hyperplane{}, false
	}
	e.seen[key] = true

	g := obj.Gradient(x)
	fVal := obj.Value(x)
	constant := fVal - dot(g, x)

	row := make([]float64, len(x))
	copy(row, g)
	if muIndex >= len(row) {
		row = append(row, make([]float64, muIndex-len(row)+1)...)
	}
	row[muIndex] -= 1

	hp := Hyperplane{
		SourceConstraint: -1,
		Point:            append([]float64(nil), x...),
		Gradient:         g,
		Constant:         constant,
		Origin:           OriginObjectiveLift,
	}

	e.solver.AddHyperplane(row, -constant)
	e.pool = append(e.pool, hp)
	return hp, true
}

// GenerateForMostViolated generates a single hyperplane for the
// arg-max-violated constraint among candidates (spec §4.4 aggregate mode
// tie-break).
func (e *Engine) GenerateForMostViolated(constraints []*shotmodel.Constraint, x []float64, origin Origin) (Hyperplane, bool) {
	best := -1
	bestVal := math.Inf(-1)
	for i, c := range constraints {
		v := c.Expr.Value(x)
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	if best < 0 {
		return Hyperplane{}, false
	}
	return e.Generate(constraints[best], x, origin)
}

// GenerateForAllViolated generates one hyperplane per violated constraint
// (spec §4.4 per-constraint mode tie-break).
func (e *Engine) GenerateForAllViolated(constraints []*shotmodel.Constraint, x []float64, tol float64, origin Origin) []Hyperplane {
	var generated []Hyperplane
	for _, c := range constraints {
		if c.Expr.Value(x) <= tol {
			continue
		}
		if hp, ok := e.Generate(c, x, origin); ok {
			generated = append(generated, hp)
		}
	}
	return generated
}

// AddIntegerNoGoodCut forwards a no-good cut over a binary assignment to
// the installed solver (spec §4.6 step 4: an NLP-infeasible pure-binary
// fixed assignment excludes itself from future MIP solves).
func (e *Engine) AddIntegerNoGoodCut(oneValuedIndices, zeroValuedIndices []int) {
	e.solver.AddIntegerNoGoodCut(oneValuedIndices, zeroValuedIndices)
}

func dot(a, b []float64) float64 {
	var s float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}
