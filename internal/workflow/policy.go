package workflow

import (
	"fmt"
	"strings"
)

// Policy decides which steps may be entered.
type Policy int

const (
	// PolicyPermissive allows every valid step at any time.
	PolicyPermissive Policy = iota
	// PolicyGated allows the dev and first steps always, and any later step
	// once the previous step is complete or its predicate holds.
	PolicyGated
)

func (p Policy) String() string {
	if p == PolicyGated {
		return "gated"
	}
	return "permissive"
}

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "permissive":
		return PolicyPermissive, nil
	case "gated":
		return PolicyGated, nil
	default:
		return 0, fmt.Errorf("unknown step policy %q", value)
	}
}

// StepSatisfied reports whether a holds the output step needs before the
// workflow may move past it.
func StepSatisfied(step Step, a Artifacts) bool {
	switch step {
	case StepExtract:
		return a.VideoFile != nil && len(a.ExtractedAudio) > 0
	case StepTranscribe:
		return a.TranscriptionSRT != ""
	case StepTranslate:
		return a.TranslatedSRT != ""
	case StepMerge:
		return true
	default:
		return false
	}
}

func (p Policy) allows(step Step, completed []Step, a Artifacts) bool {
	if !step.Valid() {
		return false
	}
	if p == PolicyPermissive || step <= FirstStep {
		return true
	}
	prev := step - 1
	return containsStep(completed, prev) || StepSatisfied(prev, a)
}
