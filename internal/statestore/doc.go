// Package statestore provides the durable key-value slots the workflow state
// store persists its snapshot into.
//
// SQLite keeps every key in one small database, File writes one JSON file per
// key with atomic replacement, and Memory backs tests and dry runs. Lock guards
// a state directory so only one vidsub process writes at a time.
package statestore
