package workerproto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RequestKind tags messages sent to a worker.
type RequestKind string

const (
	KindInitialize RequestKind = "initialize"
	KindRun        RequestKind = "run"
	KindCancel     RequestKind = "cancel"
	KindCleanup    RequestKind = "cleanup"
)

// ResponseKind tags messages emitted by a worker.
type ResponseKind string

const (
	KindModelProgress     ResponseKind = "model-progress"
	KindRunProgress       ResponseKind = "run-progress"
	KindStageChange       ResponseKind = "stage-change"
	KindInitializeSuccess ResponseKind = "initialize-success"
	KindRunSuccess        ResponseKind = "run-success"
	KindError             ResponseKind = "error"
	KindCancelled         ResponseKind = "cancelled"
)

// Request is an outbound message. Payload and Options are opaque to the
// protocol; each capability defines their JSON shape.
type Request struct {
	Type          RequestKind     `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	ModelID       string          `json:"modelId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Options       json.RawMessage `json:"options,omitempty"`
}

// ChunkInfo describes per-chunk progress of chunked inference.
type ChunkInfo struct {
	CurrentChunk  int     `json:"currentChunk"`
	TotalChunks   int     `json:"totalChunks"`
	ChunkProgress float64 `json:"chunkProgress"`
	ChunkText     string  `json:"chunkText,omitempty"`
}

// Response is an inbound message.
type Response struct {
	Type          ResponseKind    `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	ModelID       string          `json:"modelId,omitempty"`
	Percent       float64         `json:"percent"`
	BytesLoaded   int64           `json:"bytesLoaded,omitempty"`
	BytesTotal    int64           `json:"bytesTotal,omitempty"`
	ResourceID    string          `json:"resourceId,omitempty"`
	Name          string          `json:"name,omitempty"`
	Stage         string          `json:"stage,omitempty"`
	ChunkInfo     *ChunkInfo      `json:"chunkInfo,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// ErrMissingCorrelationID is returned by Validate for messages that must be
// correlated but are not.
var ErrMissingCorrelationID = errors.New("workerproto: missing correlation id")

// Validate checks the kind and correlation requirements of a request.
func (r Request) Validate() error {
	switch r.Type {
	case KindInitialize:
		if r.ModelID == "" {
			return errors.New("workerproto: initialize without model id")
		}
	case KindRun, KindCancel:
	case KindCleanup:
		return nil
	default:
		return fmt.Errorf("workerproto: unknown request type %q", r.Type)
	}
	if r.CorrelationID == "" {
		return ErrMissingCorrelationID
	}
	return nil
}

// Validate checks the kind and correlation requirements of a response. An
// error response without a correlation id is a worker-level fatal error.
func (r Response) Validate() error {
	switch r.Type {
	case KindError:
		return nil
	case KindModelProgress, KindRunProgress, KindStageChange,
		KindInitializeSuccess, KindRunSuccess, KindCancelled:
	default:
		return fmt.Errorf("workerproto: unknown response type %q", r.Type)
	}
	if r.CorrelationID == "" {
		return ErrMissingCorrelationID
	}
	return nil
}

// Terminal reports whether the response settles its request.
func (r Response) Terminal() bool {
	switch r.Type {
	case KindInitializeSuccess, KindRunSuccess, KindError, KindCancelled:
		return true
	default:
		return false
	}
}

// Fatal reports whether the response is an uncorrelated worker failure.
func (r Response) Fatal() bool {
	return r.Type == KindError && r.CorrelationID == ""
}

// Initialize builds an initialize request.
func Initialize(correlationID, modelID string) Request {
	return Request{Type: KindInitialize, CorrelationID: correlationID, ModelID: modelID}
}

// Run builds a run request, marshalling payload and options.
func Run(correlationID string, payload, options any) (Request, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("workerproto: encode payload: %w", err)
	}
	rawOptions, err := json.Marshal(options)
	if err != nil {
		return Request{}, fmt.Errorf("workerproto: encode options: %w", err)
	}
	return Request{Type: KindRun, CorrelationID: correlationID, Payload: rawPayload, Options: rawOptions}, nil
}

// Cancel builds a cancel request.
func Cancel(correlationID string) Request {
	return Request{Type: KindCancel, CorrelationID: correlationID}
}

// Cleanup builds a cleanup request.
func Cleanup() Request {
	return Request{Type: KindCleanup}
}

// Failure builds an error response.
func Failure(correlationID, message string) Response {
	return Response{Type: KindError, CorrelationID: correlationID, Message: message}
}

// Success builds a run-success response, marshalling result.
func Success(correlationID string, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("workerproto: encode result: %w", err)
	}
	return Response{Type: KindRunSuccess, CorrelationID: correlationID, Result: raw}, nil
}
