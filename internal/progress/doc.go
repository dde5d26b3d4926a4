// Package progress synthesizes smooth, monotonic progress for long-running
// inference work whose underlying primitives only report coarse signals.
//
// A Tracker combines a timer-driven synthetic estimate with real signals
// (download bytes, completed chunks), never reports a lower value than it
// already reported, and walks the loading, processing, finalizing and
// complete stages in order. Time is injected through Clock so tests can drive
// ticks with ManualClock instead of sleeping.
package progress
