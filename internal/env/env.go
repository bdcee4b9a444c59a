// Package env holds the single Environment value threaded through every
// task and adapter, replacing the original's process-wide ProcessInfo /
// Settings / Output singletons (spec §9 Design Notes, "shared process
// state"). Lifecycle: created at solver start, discarded at solver stop; no
// package-level mutable state is kept anywhere else in this module.
package env

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/zeta1999/shot-go/internal/hyperplane"
	"github.com/zeta1999/shot-go/internal/store"
)

// ESHSettings configures the Extended Supporting Hyperplane subsystem.
type ESHSettings struct {
	Enabled              bool             `yaml:"enabled"`
	NumInteriorPoints    int              `yaml:"numInteriorPoints"`
	AddPrimalPointAsInt  bool             `yaml:"addPrimalPointAsInteriorPoint"`
	CutMode              hyperplane.CutMode `yaml:"cutMode"`
}

// RootsearchSettings configures internal/rootsearch tolerances.
type RootsearchSettings struct {
	MaxIterations              int     `yaml:"maxIterations"`
	LambdaTolerance            float64 `yaml:"lambdaTolerance"`
	ConstraintTolerance        float64 `yaml:"activeConstraintTolerance"`
}

// TerminationSettings configures internal/termination thresholds.
type TerminationSettings struct {
	AbsoluteGapTolerance         float64       `yaml:"absoluteGapTolerance"`
	RelativeGapTolerance         float64       `yaml:"relativeGapTolerance"`
	RelativeGapDelta             float64       `yaml:"relativeGapDelta"`
	ConstraintTolerance          float64       `yaml:"constraintTolerance"`
	ObjectiveStagnationTolerance float64       `yaml:"objectiveStagnationTolerance"`
	StagnationIterationLimit    int           `yaml:"stagnationIterationLimit"`
	IterationLimit               int           `yaml:"iterationLimit"`
	TimeLimit                    time.Duration `yaml:"timeLimit"`
}

// PrimalSettings configures internal/primal's fixed-integer NLP heuristic.
type PrimalSettings struct {
	IterationFrequency    int     `yaml:"iterationFrequency"`
	TimeFrequency         time.Duration `yaml:"timeFrequency"`
	ConstraintTolerance   float64 `yaml:"constraintTolerance"`
}

// FixedIntegerSettings configures internal/dual's repair loop (the "Dual"
// category of original_source's FixedInteger.* settings).
type FixedIntegerSettings struct {
	MaxIterations       int     `yaml:"maxIterations"`
	ObjectiveTolerance  float64 `yaml:"objectiveTolerance"`
	ConstraintTolerance float64 `yaml:"constraintTolerance"`
	RepairFrequency     int     `yaml:"repairFrequency"`
}

// Settings is the declarative options file (spec §6 Persisted state). Zero
// values are replaced by Defaults before unmarshalling an options file, so
// a partial file is legal.
type Settings struct {
	ESH          ESHSettings          `yaml:"esh"`
	Rootsearch   RootsearchSettings   `yaml:"rootsearch"`
	Termination  TerminationSettings  `yaml:"termination"`
	Primal       PrimalSettings       `yaml:"primal"`
	FixedInteger FixedIntegerSettings `yaml:"fixedInteger"`

	MIPWorkers int `yaml:"mipWorkers"`
}

// Defaults returns the setting values used when an options file is absent
// or omits a field.
func Defaults() Settings {
	return Settings{
		ESH: ESHSettings{
			Enabled:           true,
			NumInteriorPoints: 1,
			CutMode:           hyperplane.CutModePerConstraint,
		},
		Rootsearch: RootsearchSettings{
			MaxIterations:       100,
			LambdaTolerance:     1e-4,
			ConstraintTolerance: 1e-8,
		},
		Termination: TerminationSettings{
			AbsoluteGapTolerance:         1e-5,
			RelativeGapTolerance:         1e-4,
			RelativeGapDelta:             1e-10,
			ConstraintTolerance:          1e-5,
			ObjectiveStagnationTolerance: 1e-5,
			StagnationIterationLimit:     50,
			IterationLimit:               200,
			TimeLimit:                    10 * time.Minute,
		},
		Primal: PrimalSettings{
			IterationFrequency:  10,
			TimeFrequency:       5 * time.Second,
			ConstraintTolerance: 1e-5,
		},
		FixedInteger: FixedIntegerSettings{
			MaxIterations:       20,
			ObjectiveTolerance:  1e-3,
			ConstraintTolerance: 1e-5,
			RepairFrequency:     10,
		},
		MIPWorkers: 1,
	}
}

// Environment is the single shared-state value passed by reference to
// every component. It replaces the singleton ProcessInfo/Settings pair of
// the original; nothing here is a package-level global.
type Environment struct {
	Settings Settings
	Log      *zerolog.Logger
	Results  *store.Results

	Start    time.Time
	Deadline time.Time
}

// New constructs an Environment ready for a fresh solve.
func New(settings Settings, logger *zerolog.Logger) *Environment {
	now := time.Now()
	return &Environment{
		Settings: settings,
		Log:      logger,
		Results:  store.NewResults(),
		Start:    now,
		Deadline: now.Add(settings.Termination.TimeLimit),
	}
}

// Elapsed returns the wall-clock time since solve start.
func (e *Environment) Elapsed() time.Duration { return time.Since(e.Start) }

// TimeRemaining returns the time left before Deadline; never negative.
func (e *Environment) TimeRemaining() time.Duration {
	d := time.Until(e.Deadline)
	if d < 0 {
		return 0
	}
	return d
}

// RefreshDeadline re-derives Deadline from the (possibly adaptively
// adjusted) time limit — "kept in sync with the global deadline on every
// re-entry" per spec §5.
func (e *Environment) RefreshDeadline(limit time.Duration) {
	e.Deadline = e.Start.Add(limit)
}
