package termination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zeta1999/shot-go/internal/env"
	"github.com/zeta1999/shot-go/internal/store"
)

func newTestEnv() *env.Environment {
	settings := env.Defaults()
	settings.Termination.AbsoluteGapTolerance = 1e-3
	settings.Termination.RelativeGapTolerance = 1e-3
	settings.Termination.IterationLimit = 5
	return env.New(settings, nil)
}

func TestAbsoluteGap_Triggers(t *testing.T) {
	e := newTestEnv()
	e.Results.NewIteration()
	e.Results.UpdatePrimal([]float64{1}, 10.0005)
	e.Results.UpdateDual(10.0)

	triggered, reason := AbsoluteGap(e)
	assert.True(t, triggered)
	assert.Equal(t, store.ReasonAbsoluteGap, reason)
}

func TestAbsoluteGap_NoPrimalYet(t *testing.T) {
	e := newTestEnv()
	triggered, _ := AbsoluteGap(e)
	assert.False(t, triggered)
}

func TestIterationLimit_Triggers(t *testing.T) {
	e := newTestEnv()
	for i := 0; i < 5; i++ {
		e.Results.NewIteration()
	}
	triggered, reason := IterationLimit(e)
	assert.True(t, triggered)
	assert.Equal(t, store.ReasonIterationLimit, reason)
}

func TestTimeLimit_Triggers(t *testing.T) {
	e := newTestEnv()
	e.Deadline = e.Start.Add(-time.Second)
	triggered, reason := TimeLimit(e)
	assert.True(t, triggered)
	assert.Equal(t, store.ReasonTimeLimit, reason)
}

func TestConstraintTolerance_OnlyAppliesToMIPIterations(t *testing.T) {
	e := newTestEnv()
	it := e.Results.NewIteration()
	it.Type = store.IterationFixedIntegerLP
	it.MaxDeviation = store.MaxDeviation{Value: 0}

	triggered, _ := ConstraintTolerance(e)
	assert.False(t, triggered)

	it.Type = store.IterationMIP
	triggered, reason := ConstraintTolerance(e)
	assert.True(t, triggered)
	assert.Equal(t, store.ReasonConstraintTolerance, reason)
}

func TestObjectiveStagnation_Triggers(t *testing.T) {
	e := newTestEnv()
	e.Settings.Termination.StagnationIterationLimit = 2
	e.Settings.Termination.ObjectiveStagnationTolerance = 1e-6

	for i := 0; i < 4; i++ {
		it := e.Results.NewIteration()
		it.DualBound = 5.0
	}

	triggered, reason := ObjectiveStagnation(e)
	assert.True(t, triggered)
	assert.Equal(t, store.ReasonObjectiveStagnation, reason)
}

func TestEvaluate_ReturnsFirstTriggered(t *testing.T) {
	e := newTestEnv()
	for i := 0; i < 5; i++ {
		e.Results.NewIteration()
	}
	triggered, reason := Evaluate(e, []Check{AbsoluteGap, IterationLimit})
	assert.True(t, triggered)
	assert.Equal(t, store.ReasonIterationLimit, reason)
}
