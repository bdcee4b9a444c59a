package mip

// bnbDecision records why the search disposed of a subproblem the way it
// did, adapted from jjhbw-GoMILP/tree.go.
type bnbDecision string

const (
	subproblemDegenerate          bnbDecision = "subproblem contains a degenerate (singular) matrix"
	subproblemNotFeasible         bnbDecision = "subproblem has no feasible solution"
	worseThanIncumbent            bnbDecision = "worse than incumbent"
	betterThanIncumbentBranching  bnbDecision = "better than incumbent but fractional, so branching"
	betterThanIncumbentFeasible   bnbDecision = "better than incumbent and integer-feasible, so replacing incumbent"
	initialRelaxationLegal        bnbDecision = "initial relaxation is legal"
	initialRelaxationFeasibleForIP bnbDecision = "initial relaxation is feasible for the integer program"
)

// BnbMiddleware observes the enumeration tree's decisions as they happen,
// adapted from jjhbw-GoMILP/instrumentation.go's BnbMiddleware interface.
// BranchAndBound.Solve always attaches dummyMiddleware, so no events are
// observed by default.
type BnbMiddleware interface {
	ProcessDecision(s solution, d bnbDecision)
	NewSubProblem(p subProblem)
}

// dummyMiddleware discards all events; used when no observer is attached.
type dummyMiddleware struct{}

func (dummyMiddleware) ProcessDecision(solution, bnbDecision) {}
func (dummyMiddleware) NewSubProblem(subProblem)               {}
