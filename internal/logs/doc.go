// Package logs reads the vidsub log file for the `vidsub logs` command.
//
// Tail returns the last N lines and the byte offset where reading stopped;
// Follow polls from that offset and hands new lines to a callback until the
// context ends. Memory stays bounded by the requested line count.
package logs
