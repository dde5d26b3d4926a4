package workflow

import (
	"fmt"
	"strconv"
)

// Step identifies one stage of the pipeline.
type Step int

const (
	// StepDev is an optional diagnostics step outside the normal progression.
	StepDev Step = iota
	StepExtract
	StepTranscribe
	StepTranslate
	StepMerge
)

const (
	FirstStep = StepExtract
	LastStep  = StepMerge
)

var stepNames = [...]string{
	StepDev:        "dev",
	StepExtract:    "extract",
	StepTranscribe: "transcribe",
	StepTranslate:  "translate",
	StepMerge:      "merge",
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s >= StepDev && s <= LastStep
}

// Next returns the successor of s. The dev step and the last step have none.
func (s Step) Next() (Step, bool) {
	if s < FirstStep || s >= LastStep {
		return 0, false
	}
	return s + 1, true
}

func (s Step) String() string {
	if !s.Valid() {
		return "step(" + strconv.Itoa(int(s)) + ")"
	}
	return stepNames[s]
}

// ParseStep accepts a step number or name.
func ParseStep(value string) (Step, error) {
	if n, err := strconv.Atoi(value); err == nil {
		if s := Step(n); s.Valid() {
			return s, nil
		}
		return 0, fmt.Errorf("step %d out of range %d-%d", n, StepDev, LastStep)
	}
	for i, name := range stepNames {
		if name == value {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", value)
}

// Steps returns every step in order, including the dev step.
func Steps() []Step {
	return []Step{StepDev, StepExtract, StepTranscribe, StepTranslate, StepMerge}
}
