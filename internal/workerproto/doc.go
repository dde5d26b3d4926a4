// Package workerproto defines the messages exchanged between an inference
// client and the worker that hosts a model.
//
// Every message carries the correlation id of the request it belongs to. A
// request produces zero or more progress messages followed by exactly one
// terminal message (success, error or cancelled). Messages are JSON objects
// tagged by "type"; Encoder and Decoder carry them as newline-delimited JSON
// over byte streams.
package workerproto
