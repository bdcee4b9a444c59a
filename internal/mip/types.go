// Package mip implements the MIP Solver Adapter of spec §6: an abstract
// interface to a branch-and-cut solver, plus a default branch-and-bound
// implementation over gonum's simplex LP solver. The implementation is
// adapted from jjhbw-GoMILP, generalized from a static linear-only model to
// one that accepts incrementally-added supporting hyperplanes, variable
// fixing for the dual repair loop (§4.7), and a small solution pool.
package mip

import (
	"context"
	"errors"
	"time"

	"github.com/zeta1999/shot-go/internal/shotmodel"
	"github.com/zeta1999/shot-go/internal/store"
)

// Sentinel errors, in the style of jjhbw-GoMILP/ilp.go.
var (
	ErrInitialRelaxationInfeasible = errors.New("mip: initial LP relaxation is not feasible")
	ErrNoIntegerFeasibleSolution   = errors.New("mip: no integer feasible solution found")
	ErrNotFinalized                = errors.New("mip: FinalizeProblem has not been called")
)

// cutoffIgnoreThreshold is the boundary behaviour of spec §8: a cutoff with
// |cutoff| >= 1e20 must be silently ignored.
const cutoffIgnoreThreshold = 1e20

// Solution is a single result the adapter can report back, either the
// incumbent or a member of the solution pool.
type Solution struct {
	X         []float64
	Objective float64
}

// Solver is the capability interface the core consumes (spec §6). The
// default implementation is *BranchAndBound.
type Solver interface {
	AddVariable(name string, kind shotmodel.VariableKind, lower, upper float64) int
	AddLinearConstraint(coeffs []float64, lower, upper float64) int
	FinalizeObjective(sense shotmodel.Sense, coeffs []float64, constant float64)
	FinalizeProblem() error

	Solve(ctx context.Context) (store.MIPStatus, error)

	GetSolutionCount() int
	GetVariableSolution(i int) []float64
	GetObjectiveValue(i int) float64
	GetDualObjectiveValue() float64

	SetCutoff(value float64)
	SetTimeLimit(d time.Duration)
	SetSolutionLimit(n int)
	ActivateDiscreteVariables(active bool)

	FixVariables(indices []int, values []float64)
	UnfixVariables()
	UpdateVariableBound(index int, lower, upper float64)

	AddHyperplane(coeffs []float64, rhs float64) int
	AddMIPStart(x []float64)
	AddIntegerNoGoodCut(oneValuedIndices, zeroValuedIndices []int)
}
