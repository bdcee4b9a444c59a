// Command shotsolver is the CLI entry point of spec §6: solver
// <problem-file> [options-file] [results-file] [trace-file]. Positional
// argument handling mirrors original_source/src/SHOT.cpp's argc-based
// dispatch (when omitted: default settings, results.yaml, and no trace
// file); -help
// is exposed the way itohio-EasyRobot's cmd/*/main.go entry points use
// stdlib flag for a single boolean switch.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/mip"
	"github.com/zeta1999/shot-go/internal/nlp"
	"github.com/zeta1999/shot-go/internal/persist"
	"github.com/zeta1999/shot-go/internal/pipeline"
)

const banner = `Supporting Hyperplane Optimization Toolkit (Go)
based on the Extended Supporting Hyperplane algorithm
`

func main() {
	help := flag.Bool("help", false, "print usage and exit")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	if *help || flag.NArg() == 0 {
		fmt.Print(banner)
		fmt.Println("Usage: shotsolver <problem-file> [options-file] [results-file] [trace-file]")
		os.Exit(0)
	}

	args := flag.Args()
	problemFile := args[0]
	optionsFile := arg(args, 1, "")
	resultsFile := arg(args, 2, "results.yaml")
	traceFile := arg(args, 3, "")

	if _, err := os.Stat(problemFile); err != nil {
		fmt.Fprintln(os.Stderr, "problem file not found:", problemFile)
		os.Exit(1)
	}
	if optionsFile != "" {
		if _, err := os.Stat(optionsFile); err != nil {
			fmt.Fprintln(os.Stderr, "options file not found:", optionsFile)
			os.Exit(1)
		}
	}

	logLevel := zerolog.InfoLevel
	if *verbose {
		logLevel = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(logLevel).
		With().Timestamp().Logger()

	settings, err := persist.LoadSettings(optionsFile)
	if err != nil {
		logger.Error().Err(err).Msg("cannot set options")
		os.Exit(1)
	}

	problem, err := persist.LoadProblem(problemFile)
	if err != nil {
		logger.Error().Err(err).Msg("error when reading problem file")
		os.Exit(1)
	}

	logger.Info().Msg(banner)

	e := env.New(settings, &logger)

	mipSolver := mip.NewBranchAndBound(settings.MIPWorkers)
	for _, v := range problem.Variables {
		mipSolver.AddVariable(v.Name, v.Kind, v.Lower, v.Upper)
	}
	for _, c := range problem.Constraints {
		mipSolver.AddLinearConstraint(c.Linear, c.Lower, c.Upper)
	}
	mipSolver.FinalizeObjective(problem.Objective.Sense, problem.Objective.Linear, problem.Objective.Const)
	if err := mipSolver.FinalizeProblem(); err != nil {
		logger.Error().Err(err).Msg("cannot build the MIP model")
		os.Exit(1)
	}
	nlpSolver := nlp.NewGonumAdapter()

	trace, err := persist.OpenTrace(traceFile)
	if err != nil {
		logger.Warn().Err(err).Msg("could not open trace file, continuing without one")
	}

	runner, outcome := pipeline.Solve(e, problem, mipSolver, nlpSolver)
	_ = outcome

	for _, it := range e.Results.Iterations {
		if err := trace.Append(it); err != nil {
			logger.Warn().Err(err).Msg("trace append failed")
		}
	}
	if err := trace.Close(); err != nil {
		logger.Warn().Err(err).Msg("trace close failed")
	}

	if err := persist.WriteResults(resultsFile, e.Results); err != nil {
		logger.Error().Err(err).Msg("error when writing results file")
		os.Exit(1)
	}

	_ = runner
	logger.Info().
		Dur("elapsed", e.Elapsed()).
		Bool("primalFound", e.Results.BestPrimal.Found).
		Float64("primalObjective", e.Results.BestPrimal.Objective).
		Float64("dualBound", e.Results.BestDual).
		Msg("solution time")

	os.Exit(0)
}

func arg(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}
