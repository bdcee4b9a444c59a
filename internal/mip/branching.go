package mip

import "math"

// BranchHeuristic selects which fractional variable the branch-and-bound
// search splits on at each node (spec §4.5 "solve MIP relaxation" step,
// adapted from jjhbw-GoMILP/branching.go).
type BranchHeuristic int

const (
	BranchMaxFun BranchHeuristic = iota
	BranchMostInfeasible
	BranchNaive
)

// naiveBranchPoint cycles through integrality-constrained variables,
// continuing from the last one branched on.
func (s solution) naiveBranchPoint() int {
	branchOn := 0

	if len(s.problem.bnbConstraints) == 0 {
		for i := range s.problem.integralityConstraints {
			if s.problem.integralityConstraints[i] {
				branchOn = i
			}
		}
		return branchOn
	}

	lastBranchedVariable := s.problem.bnbConstraints[len(s.problem.bnbConstraints)-1].branchedVariable
	cursor := lastBranchedVariable
	for {
		if cursor == len(s.problem.c)-1 {
			cursor = -1
		}
		cursor++
		if s.problem.integralityConstraints[cursor] {
			branchOn = cursor
			break
		}
	}

	return branchOn
}

// maxFunBranchPoint picks the integrality-constrained variable with the
// largest absolute objective coefficient.
func maxFunBranchPoint(c []float64, integralityConstraints []bool) int {
	if len(c) != len(integralityConstraints) {
		panic("mip: number of variables does not match number of integrality constraints")
	}

	var candidateValue float64
	currentCandidate := 0

	for i, v := range c {
		if integralityConstraints[i] {
			if math.Abs(v) >= candidateValue {
				currentCandidate = i
				candidateValue = math.Abs(v)
			}
		}
	}

	return currentCandidate
}

// mostInfeasibleBranchPoint picks the integrality-constrained variable
// whose current LP-relaxation value has a fractional part closest to 1/2.
func mostInfeasibleBranchPoint(x []float64, integralityConstraints []bool) int {
	if len(x) != len(integralityConstraints) {
		panic("mip: number of variables does not match number of integrality constraints")
	}

	candidateRemainder := 1.0
	currentCandidate := 0

	for i, v := range x {
		if integralityConstraints[i] {
			_, f := math.Modf(v)
			if f < 0 {
				f = -f
			}
			remainder := math.Abs(0.5 - f)
			if remainder <= candidateRemainder {
				currentCandidate = i
				candidateRemainder = remainder
			}
		}
	}

	return currentCandidate
}
