// Package stageexec executes workflow steps.
//
// A Runner owns the busy flag and the log lines around each step: it tags the
// context with the step name and a fresh correlation id, marks the store as
// processing, runs the step's Action, completes the step on success and
// always clears the busy flag. Actions do the step-specific work and write
// their results back as artifact updates.
package stageexec
