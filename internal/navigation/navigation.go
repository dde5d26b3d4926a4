// Package navigation maps external step paths of the form /step-N onto the
// workflow store.
package navigation

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"vidsub/internal/logging"
	"vidsub/internal/workflow"
)

const pathPrefix = "/step-"

// ParsePath extracts the step from a path such as "/step-2". Trailing
// slashes are accepted. ok is false for any other shape or an out-of-range
// step.
func ParsePath(path string) (workflow.Step, bool) {
	path = strings.TrimRight(strings.TrimSpace(path), "/")
	rest, found := strings.CutPrefix(path, pathPrefix)
	if !found || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || strconv.Itoa(n) != rest {
		return 0, false
	}
	step := workflow.Step(n)
	return step, step.Valid()
}

// PathFor returns the path that represents step.
func PathFor(step workflow.Step) string {
	return fmt.Sprintf("%s%d", pathPrefix, int(step))
}

// Navigator is the part of the workflow store the guard drives.
type Navigator interface {
	JumpToStep(step workflow.Step) bool
	CurrentStep() workflow.Step
}

// Guard applies requested paths to a Navigator before any step-specific work
// runs.
type Guard struct {
	store  Navigator
	logger *slog.Logger
}

// NewGuard returns a guard over store.
func NewGuard(store Navigator, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{store: store, logger: logging.NewComponentLogger(logger, "navigation")}
}

// Enter jumps to the step named by path and returns the step now current.
// Malformed or out-of-range paths, and steps the store refuses, leave state
// unchanged.
func (g *Guard) Enter(path string) workflow.Step {
	step, ok := ParsePath(path)
	if !ok {
		g.logger.Debug("ignoring navigation path", logging.String("path", path))
		return g.store.CurrentStep()
	}
	if !g.store.JumpToStep(step) {
		g.logger.Info("step not accessible",
			logging.String("path", path),
			logging.String("current", g.store.CurrentStep().String()),
		)
	}
	return g.store.CurrentStep()
}

// Reconcile compares an externally observed path with the stored step. It
// returns the path that should be shown and whether it differs from observed.
func (g *Guard) Reconcile(observed string) (string, bool) {
	want := PathFor(g.store.CurrentStep())
	if step, ok := ParsePath(observed); ok && PathFor(step) == want {
		return want, false
	}
	return want, true
}
