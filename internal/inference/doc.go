// Package inference hosts long-running model work behind a message-passing
// boundary.
//
// A worker owns one Capability (speech-to-text, translation) and is reachable
// only through workerproto messages carried by a Port. Client multiplexes
// concurrent requests over that port by correlation id, forwards progress to
// callbacks and settles each request exactly once. Workers run in-process as
// goroutines (Spawn) or in another process over NDJSON (NewStreamPort,
// NewCommandPort and ServeStream).
package inference
