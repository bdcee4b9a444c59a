package mip

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/zeta1999/shot-go/internal/shotmodel"
	"github.com/zeta1999/shot-go/internal/store"
)

// hyperplaneRow is one dynamically-added cut: coeffs*x <= rhs.
type hyperplaneRow struct {
	coeffs []float64
	rhs    float64
}

// BranchAndBound is the default MIP Solver Adapter: branch-and-bound over
// an LP relaxation solved with gonum's simplex, adapted from
// jjhbw-GoMILP's milpProblem/subProblem split.
type BranchAndBound struct {
	variables []shotmodel.Variable

	// static linear-equality part of the model, in the A*x=b / G*x<=h
	// split; equality rows come from AddLinearConstraint when
	// Lower == Upper.
	Adata []float64
	b     []float64
	nEq   int

	baseGdata []float64 // fixed inequality rows from AddLinearConstraint
	baseH     []float64
	nIneq     int

	hyperplanes []hyperplaneRow

	c                      []float64
	integralityConstraints []bool
	branchHeuristic        BranchHeuristic

	finalized bool

	cutoff        float64
	cutoffSet     bool
	timeLimit     time.Duration
	solutionLimit int
	discreteActive bool

	fixedIndices []int
	fixedSaved   [][2]float64 // saved (lower, upper) per fixed index, in the same order

	workers int

	// populated by Solve:
	tree        *enumerationTree
	status      store.MIPStatus
	rootBound   float64
}

// NewBranchAndBound returns a solver adapter with `workers` concurrent
// branch-and-bound workers (spec §5: "MIP adapter may internally use
// multiple threads").
func NewBranchAndBound(workers int) *BranchAndBound {
	if workers < 1 {
		workers = 1
	}
	return &BranchAndBound{
		discreteActive: true,
		workers:        workers,
		branchHeuristic: BranchMostInfeasible,
		rootBound:       math.Inf(-1),
	}
}

func (s *BranchAndBound) AddVariable(name string, kind shotmodel.VariableKind, lower, upper float64) int {
	idx := len(s.variables)
	s.variables = append(s.variables, shotmodel.Variable{Index: idx, Name: name, Kind: kind, Lower: lower, Upper: upper})
	s.integralityConstraints = append(s.integralityConstraints, kind == shotmodel.Binary || kind == shotmodel.Integer)
	return idx
}

// AddLinearConstraint appends L <= coeffs*x <= U as one or two inequality
// rows (an equality row when L == U), following jjhbw-GoMILP/api.go's
// toSolveable bound-to-inequality conversion, generalized to ranged rows.
func (s *BranchAndBound) AddLinearConstraint(coeffs []float64, lower, upper float64) int {
	idx := s.nIneq + s.nEq
	if lower == upper {
		s.Adata = append(s.Adata, coeffs...)
		s.b = append(s.b, lower)
		s.nEq++
		return idx
	}
	if !math.IsInf(upper, 1) {
		s.baseGdata = append(s.baseGdata, coeffs...)
		s.baseH = append(s.baseH, upper)
		s.nIneq++
	}
	if !math.IsInf(lower, -1) {
		neg := make([]float64, len(coeffs))
		for i, v := range coeffs {
			neg[i] = -v
		}
		s.baseGdata = append(s.baseGdata, neg...)
		s.baseH = append(s.baseH, -lower)
		s.nIneq++
	}
	return idx
}

func (s *BranchAndBound) FinalizeObjective(sense shotmodel.Sense, coeffs []float64, constant float64) {
	c := make([]float64, len(coeffs))
	copy(c, coeffs)
	if sense == shotmodel.Maximize {
		for i := range c {
			c[i] = -c[i]
		}
	}
	s.c = c
	_ = constant // gonum's simplex has no additive-constant term; callers add it back when reading GetObjectiveValue if needed.
}

// FinalizeProblem appends variable bounds as inequality rows (the way
// jjhbw-GoMILP/api.go's toSolveable does) and marks the model ready to
// solve.
func (s *BranchAndBound) FinalizeProblem() error {
	n := len(s.variables)
	for _, v := range s.variables {
		if !math.IsInf(v.Upper, 1) {
			row := make([]float64, n)
			row[v.Index] = 1
			s.baseGdata = append(s.baseGdata, row...)
			s.baseH = append(s.baseH, v.Upper)
			s.nIneq++
		}
		if v.Lower != 0 {
			row := make([]float64, n)
			row[v.Index] = -1
			s.baseGdata = append(s.baseGdata, row...)
			s.baseH = append(s.baseH, -v.Lower)
			s.nIneq++
		}
	}
	s.finalized = true
	return nil
}

func (s *BranchAndBound) buildInitial() subProblem {
	n := len(s.variables)

	var A *mat.Dense
	if s.nEq > 0 {
		A = mat.NewDense(s.nEq, n, append([]float64(nil), s.Adata...))
	}

	Gdata := append([]float64(nil), s.baseGdata...)
	h := append([]float64(nil), s.baseH...)
	for _, hp := range s.hyperplanes {
		Gdata = append(Gdata, hp.coeffs...)
		h = append(h, hp.rhs)
	}
	// The bound rows in baseGdata were built at FinalizeProblem time, so
	// variables fixed by FixVariables are pinned with their own pair of rows.
	for _, idx := range s.fixedIndices {
		up := make([]float64, n)
		up[idx] = 1
		down := make([]float64, n)
		down[idx] = -1
		Gdata = append(Gdata, up...)
		Gdata = append(Gdata, down...)
		h = append(h, s.variables[idx].Upper, -s.variables[idx].Lower)
	}
	var G *mat.Dense
	if len(h) > 0 {
		G = mat.NewDense(len(h), n, Gdata)
	}

	integrality := s.integralityConstraints
	if !s.discreteActive {
		integrality = make([]bool, n)
	}

	return subProblem{
		id:                     0,
		c:                      s.c,
		A:                      A,
		b:                      s.b,
		G:                      G,
		h:                      h,
		integralityConstraints: integrality,
		branchHeuristic:        s.branchHeuristic,
		bnbConstraints:         []bnbConstraint{},
	}
}

// Solve runs the branch-and-bound search (spec §4.5 SolveIteration). The
// cutoff and time limit are applied via ctx and via pruning against
// s.cutoff inside processNode's incumbent comparison (handled by seeding
// the tree's incumbent bound).
func (s *BranchAndBound) Solve(ctx context.Context) (store.MIPStatus, error) {
	if !s.finalized {
		return store.StatusError, ErrNotFinalized
	}

	if s.timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeLimit)
		defer cancel()
	}

	initial := s.buildInitial()

	tree := newEnumerationTree(initial, dummyMiddleware{})
	if s.cutoffSet && math.Abs(s.cutoff) < cutoffIgnoreThreshold {
		tree.incumbent = &solution{z: s.cutoff}
	}

	incumbent := tree.startSearch(ctx, initial, s.workers)
	s.tree = tree

	if ctx.Err() != nil {
		s.status = store.StatusTimeLimit
		return s.status, nil
	}

	if incumbent == nil {
		s.status = store.StatusInfeasible
		return s.status, ErrNoIntegerFeasibleSolution
	}

	s.status = store.StatusOptimal
	return s.status, nil
}

func (s *BranchAndBound) GetSolutionCount() int {
	if s.tree == nil {
		return 0
	}
	return len(s.tree.solutionPool)
}

func (s *BranchAndBound) GetVariableSolution(i int) []float64 {
	if s.tree == nil {
		return nil
	}
	if i == 0 {
		if s.tree.incumbent == nil {
			return nil
		}
		return s.tree.incumbent.x
	}
	pool := s.tree.solutionPool
	idx := len(pool) - i
	if idx < 0 || idx >= len(pool) {
		return nil
	}
	return pool[idx].x
}

func (s *BranchAndBound) GetObjectiveValue(i int) float64 {
	if s.tree == nil {
		return math.NaN()
	}
	if i == 0 {
		if s.tree.incumbent == nil {
			return math.NaN()
		}
		return s.tree.incumbent.z
	}
	pool := s.tree.solutionPool
	idx := len(pool) - i
	if idx < 0 || idx >= len(pool) {
		return math.NaN()
	}
	return pool[idx].z
}

// GetDualObjectiveValue returns the best-possible bound: once the search
// runs to completion this is the incumbent's (proven-optimal) objective;
// if it was interrupted by the time limit, the loosest still-open node
// bound recorded during the search.
func (s *BranchAndBound) GetDualObjectiveValue() float64 {
	if s.tree == nil {
		return s.rootBound
	}
	return s.tree.currentBound()
}

// SetCutoff sets the objective cutoff. Per spec §8, |cutoff| >= 1e20 is
// silently ignored.
func (s *BranchAndBound) SetCutoff(value float64) {
	if math.Abs(value) >= cutoffIgnoreThreshold {
		return
	}
	s.cutoff = value
	s.cutoffSet = true
}

func (s *BranchAndBound) SetTimeLimit(d time.Duration)  { s.timeLimit = d }
func (s *BranchAndBound) SetSolutionLimit(n int)        { s.solutionLimit = n }
func (s *BranchAndBound) ActivateDiscreteVariables(active bool) {
	s.discreteActive = active
}

// FixVariables temporarily tightens the listed variables to a point value,
// saving their previous bounds so UnfixVariables can restore them exactly
// (spec §4.7/§5: "always paired with an unfix on every return path").
func (s *BranchAndBound) FixVariables(indices []int, values []float64) {
	s.fixedIndices = append([]int(nil), indices...)
	s.fixedSaved = make([][2]float64, len(indices))
	for k, idx := range indices {
		s.fixedSaved[k] = [2]float64{s.variables[idx].Lower, s.variables[idx].Upper}
		s.variables[idx].Lower = values[k]
		s.variables[idx].Upper = values[k]
	}
}

// UnfixVariables restores the bounds saved by the last FixVariables call.
func (s *BranchAndBound) UnfixVariables() {
	for k, idx := range s.fixedIndices {
		s.variables[idx].Lower = s.fixedSaved[k][0]
		s.variables[idx].Upper = s.fixedSaved[k][1]
	}
	s.fixedIndices = nil
	s.fixedSaved = nil
}

// UpdateVariableBound tightens (never loosens) a variable's stored bounds.
// The bound rows built by FinalizeProblem are not rebuilt, so later Solve
// calls do not see the new bounds.
func (s *BranchAndBound) UpdateVariableBound(index int, lower, upper float64) {
	if lower > s.variables[index].Lower {
		s.variables[index].Lower = lower
	}
	if upper < s.variables[index].Upper {
		s.variables[index].Upper = upper
	}
}

// AddHyperplane installs the half-space coeffs*x <= rhs, returning its
// index in the hyperplane list.
func (s *BranchAndBound) AddHyperplane(coeffs []float64, rhs float64) int {
	s.hyperplanes = append(s.hyperplanes, hyperplaneRow{coeffs: append([]float64(nil), coeffs...), rhs: rhs})
	return len(s.hyperplanes) - 1
}

// AddMIPStart is a no-op for this adapter: the simplex-based relaxation
// solve has no concept of a warm start vector to seed.
func (s *BranchAndBound) AddMIPStart(x []float64) {}

// AddIntegerNoGoodCut adds Σ_{i∈one}(1-x_i) + Σ_{i∈zero} x_i >= 1 (spec
// glossary: Integer no-good cut), expressed as Σ_one x_i - Σ_zero x_i <=
// len(one) - 1.
func (s *BranchAndBound) AddIntegerNoGoodCut(oneValuedIndices, zeroValuedIndices []int) {
	n := len(s.variables)
	row := make([]float64, n)
	for _, i := range oneValuedIndices {
		row[i] = 1
	}
	for _, i := range zeroValuedIndices {
		row[i] = -1
	}
	rhs := float64(len(oneValuedIndices)) - 1
	s.AddHyperplane(row, rhs)
}
