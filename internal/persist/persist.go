// Package persist handles the three on-disk artifacts spec §6 names: an
// options file (read), a results file (written on termination), and an
// optional per-iteration trace file (cmd/shotsolver writes one record per
// iteration after the solve returns).
// Grounded on itohio-EasyRobot/x/marshaller/yaml's thin Marshal/Unmarshal
// wrapper pattern, generalized from a single config struct to the three
// distinct documents this solver persists.
package persist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/shotmodel"
	"github.com/zeta1999/shot-go/internal/store"
)

// ProblemDocument is this project's own minimal instance file format.
// Spec §1 explicitly places "file-format I/O for instances" out of scope
// as an external collaborator (the original reads OSiL/AMPL-style files
// through a separate parser library); this format is read-only and
// carries linear variables, objective and constraints only. Quadratic and
// nonlinear parts have no representation here — build those directly
// against shotmodel.Problem from Go code instead.
type ProblemDocument struct {
	Sense     string                  `yaml:"sense"`
	Variables []VariableDocument      `yaml:"variables"`
	Objective ObjectiveDocument       `yaml:"objective"`
	Constraints []ConstraintDocument  `yaml:"constraints"`
}

type VariableDocument struct {
	Name  string  `yaml:"name"`
	Kind  string  `yaml:"kind"` // "real", "binary", "integer", "semicontinuous"
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

type ObjectiveDocument struct {
	Linear []float64 `yaml:"linear"`
	Const  float64   `yaml:"const"`
}

type ConstraintDocument struct {
	Name   string    `yaml:"name"`
	Linear []float64 `yaml:"linear"`
	Lower  float64   `yaml:"lower"`
	Upper  float64   `yaml:"upper"`
}

var variableKindNames = map[string]shotmodel.VariableKind{
	"real":           shotmodel.Real,
	"binary":         shotmodel.Binary,
	"integer":        shotmodel.Integer,
	"semicontinuous": shotmodel.SemiContinuous,
}

// LoadProblem reads a linear instance in this project's own YAML
// format and builds a shotmodel.Problem from it.
func LoadProblem(path string) (shotmodel.Problem, error) {
	var p shotmodel.Problem
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("persist: reading problem file: %w", err)
	}
	var doc ProblemDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return p, fmt.Errorf("persist: parsing problem file: %w", err)
	}

	for _, v := range doc.Variables {
		kind, ok := variableKindNames[v.Kind]
		if !ok {
			kind = shotmodel.Real
		}
		p.AddVariable(v.Name, kind, v.Lower, v.Upper)
	}
	p.Objective = shotmodel.Objective{
		Kind:   shotmodel.LinearObjective,
		Sense:  senseFromName(doc.Sense),
		Linear: doc.Objective.Linear,
		Const:  doc.Objective.Const,
	}
	for _, c := range doc.Constraints {
		p.AddLinearConstraint(c.Name, c.Linear, c.Lower, c.Upper)
	}
	return p, nil
}

func senseFromName(s string) shotmodel.Sense {
	if s == "maximize" {
		return shotmodel.Maximize
	}
	return shotmodel.Minimize
}

// LoadSettings reads an options YAML file, starting from env.Defaults()
// so a partial file only overrides the fields it mentions.
func LoadSettings(path string) (env.Settings, error) {
	settings := env.Defaults()
	if path == "" {
		return settings, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("persist: reading options file: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("persist: parsing options file: %w", err)
	}
	return settings, nil
}

// ResultsDocument is the on-disk shape of the results file: the run's
// termination reason, final bounds, and best point, flattened out of
// store.Results into yaml-friendly field names.
type ResultsDocument struct {
	TerminationReason string    `yaml:"terminationReason"`
	IterationCount    int       `yaml:"iterationCount"`
	PrimalObjective   float64   `yaml:"primalObjective"`
	PrimalFound       bool      `yaml:"primalFound"`
	PrimalX           []float64 `yaml:"primalSolution,omitempty"`
	DualBound         float64   `yaml:"dualBound"`
}

var terminationReasonNames = map[store.TerminationReason]string{
	store.NotTerminated:              "notTerminated",
	store.ReasonAbsoluteGap:          "absoluteGap",
	store.ReasonRelativeGap:          "relativeGap",
	store.ReasonConstraintTolerance:  "constraintTolerance",
	store.ReasonObjectiveStagnation:  "objectiveStagnation",
	store.ReasonIterationLimit:       "iterationLimit",
	store.ReasonTimeLimit:            "timeLimit",
	store.ReasonIterationError:       "iterationError",
}

func reasonName(r store.TerminationReason) string {
	if name, ok := terminationReasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// WriteResults serializes r into the results document shape and writes it
// to path.
func WriteResults(path string, r *store.Results) error {
	doc := ResultsDocument{
		TerminationReason: reasonName(r.TerminationReason),
		IterationCount:    len(r.Iterations),
		PrimalObjective:   r.BestPrimal.Objective,
		PrimalFound:       r.BestPrimal.Found,
		PrimalX:           r.BestPrimal.X,
		DualBound:         r.BestDual,
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("persist: marshalling results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist: writing results file: %w", err)
	}
	return nil
}

// TraceRecord is one line of the optional iteration trace file.
type TraceRecord struct {
	Iteration        int     `yaml:"iteration"`
	Status           string  `yaml:"status"`
	DualBound        float64 `yaml:"dualBound"`
	PrimalBound      float64 `yaml:"primalBound"`
	MaxDeviation     float64 `yaml:"maxDeviation"`
	HyperplanesAdded int     `yaml:"hyperplanesAdded"`
}

// TraceWriter appends one YAML document per iteration to an open file, the
// way a long solve streams progress without holding the whole trace in
// memory.
type TraceWriter struct {
	f *os.File
}

func OpenTrace(path string) (*TraceWriter, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("persist: creating trace file: %w", err)
	}
	return &TraceWriter{f: f}, nil
}

func (t *TraceWriter) Append(it *store.Iteration) error {
	if t == nil {
		return nil
	}
	rec := TraceRecord{
		Iteration:        it.Number,
		Status:           statusName(it.Status),
		DualBound:        it.DualBound,
		PrimalBound:      it.PrimalBound,
		MaxDeviation:      it.MaxDeviation.Value,
		HyperplanesAdded: it.HyperplanesAddedThisIteration,
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persist: marshalling trace record: %w", err)
	}
	if _, err := t.f.Write(append(data, []byte("---\n")...)); err != nil {
		return fmt.Errorf("persist: appending trace record: %w", err)
	}
	return nil
}

func (t *TraceWriter) Close() error {
	if t == nil {
		return nil
	}
	return t.f.Close()
}

var statusNames = map[store.MIPStatus]string{
	store.StatusNotRun:        "notRun",
	store.StatusOptimal:       "optimal",
	store.StatusFeasible:      "feasible",
	store.StatusInfeasible:    "infeasible",
	store.StatusUnbounded:     "unbounded",
	store.StatusSolutionLimit: "solutionLimit",
	store.StatusTimeLimit:     "timeLimit",
	store.StatusNodeLimit:     "nodeLimit",
	store.StatusError:         "error",
}

func statusName(s store.MIPStatus) string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}
