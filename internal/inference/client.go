package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"vidsub/internal/logging"
	"vidsub/internal/progress"
	"vidsub/internal/workerproto"
)

// ModelProgress is forwarded to InitializeModel callers while a model loads.
type ModelProgress struct {
	ResourceID string
	Name       string
	Percent    float64
	Loaded     int64
	Total      int64
	// Overall aggregates every resource seen during this load.
	Overall float64
}

// RunHooks receives progress for one RunInference call. All hooks are
// optional and are invoked from the client's reader goroutine.
type RunHooks struct {
	OnProgress      func(percent float64)
	OnStageChange   func(stage string)
	OnChunkProgress func(workerproto.ChunkInfo)
}

type outcome struct {
	modelID string
	result  json.RawMessage
	err     error
}

type pendingRequest struct {
	id      string
	kind    workerproto.RequestKind
	modelID string
	done    chan outcome
	onModel func(ModelProgress)
	hooks   RunHooks
	sampler *logging.ProgressSampler
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger *slog.Logger
	name   string
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName labels log lines, e.g. "transcription".
func WithName(name string) ClientOption {
	return func(o *clientOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// Client talks to one worker. P is the run payload, O the run options and R
// the decoded result. Methods are safe for concurrent use.
type Client[P, O, R any] struct {
	port   Port
	logger *slog.Logger

	mu         sync.Mutex
	seq        uint64
	pending    map[string]*pendingRequest
	modelID    string
	loaded     bool
	latestInit string
	currentOp  string
	broken     error
	items      progress.Items

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewClient wraps port and starts reading its messages.
func NewClient[P, O, R any](port Port, opts ...ClientOption) *Client[P, O, R] {
	options := clientOptions{logger: logging.NewNop(), name: "inference"}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	c := &Client[P, O, R]{
		port:    port,
		logger:  logging.NewComponentLogger(options.logger, options.name),
		pending: make(map[string]*pendingRequest),
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

// InitializeModel loads modelID in the worker and returns the model id the
// worker reported. A model that is already loaded resolves without a round
// trip unless another initialization is still in flight. Only the most
// recently issued initialization updates the client's loaded state.
func (c *Client[P, O, R]) InitializeModel(ctx context.Context, modelID string, onProgress func(ModelProgress)) (string, error) {
	if modelID == "" {
		return "", errors.New("initialize model: empty model id")
	}
	c.mu.Lock()
	if c.broken != nil {
		err := c.broken
		c.mu.Unlock()
		return "", err
	}
	if c.loaded && c.modelID == modelID && c.latestInit == "" {
		c.mu.Unlock()
		return modelID, nil
	}
	req := c.registerLocked("init", workerproto.KindInitialize, modelID)
	req.onModel = onProgress
	c.latestInit = req.id
	c.items.Reset()
	c.mu.Unlock()

	c.logger.Info("initializing model",
		logging.String(logging.FieldModelID, modelID),
		logging.String(logging.FieldCorrelationID, req.id),
	)
	if err := c.port.Post(workerproto.Initialize(req.id, modelID)); err != nil {
		c.settle(req.id, outcome{err: fmt.Errorf("post initialize: %w", err)})
	}
	out := c.wait(ctx, req)
	if out.err != nil {
		return "", out.err
	}
	return out.modelID, nil
}

// RunInference executes one request on the loaded model. It fails without a
// round trip when no model is loaded.
func (c *Client[P, O, R]) RunInference(ctx context.Context, payload P, options O, hooks RunHooks) (R, error) {
	var zero R
	c.mu.Lock()
	if c.broken != nil {
		err := c.broken
		c.mu.Unlock()
		return zero, err
	}
	if !c.loaded {
		c.mu.Unlock()
		return zero, ErrModelNotLoaded
	}
	req := c.registerLocked("run", workerproto.KindRun, c.modelID)
	req.hooks = hooks
	req.sampler = logging.NewProgressSampler(10)
	c.currentOp = req.id
	c.mu.Unlock()
	defer c.clearCurrent(req.id)

	msg, err := workerproto.Run(req.id, payload, options)
	if err != nil {
		c.settle(req.id, outcome{err: err})
	} else if err := c.port.Post(msg); err != nil {
		c.settle(req.id, outcome{err: fmt.Errorf("post run: %w", err)})
	}
	out := c.wait(ctx, req)
	if out.err != nil {
		return zero, out.err
	}
	var result R
	if err := json.Unmarshal(out.result, &result); err != nil {
		return zero, fmt.Errorf("decode inference result: %w", err)
	}
	return result, nil
}

// CancelOperation cancels the given requests, or every pending request when
// no id is given. Cancelled callers return ErrCancelled immediately; the
// worker's acknowledgement is not awaited. Unknown ids are ignored.
func (c *Client[P, O, R]) CancelOperation(ids ...string) {
	if len(ids) == 0 {
		c.mu.Lock()
		for id := range c.pending {
			ids = append(ids, id)
		}
		c.mu.Unlock()
	}
	for _, id := range ids {
		c.cancel(id, ErrCancelled)
	}
}

// IsModelLoaded reports whether a model is ready for RunInference.
func (c *Client[P, O, R]) IsModelLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// CurrentModelID returns the loaded model id, or "" when none is loaded.
func (c *Client[P, O, R]) CurrentModelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return ""
	}
	return c.modelID
}

// CurrentOperationID returns the id of the in-flight run, or "".
func (c *Client[P, O, R]) CurrentOperationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentOp
}

// ProgressItems returns per-resource download progress of the latest model
// load.
func (c *Client[P, O, R]) ProgressItems() []progress.Item {
	return c.items.Snapshot()
}

// Pending returns the number of unsettled requests.
func (c *Client[P, O, R]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Cleanup asks the worker to drop its model, terminates it and releases
// every waiting caller with ErrClosed. Later calls return ErrClosed.
func (c *Client[P, O, R]) Cleanup() {
	c.mu.Lock()
	if errors.Is(c.broken, ErrClosed) {
		c.mu.Unlock()
		return
	}
	c.broken = ErrClosed
	c.loaded = false
	c.modelID = ""
	c.currentOp = ""
	c.latestInit = ""
	waiting := c.drainLocked()
	c.mu.Unlock()

	_ = c.port.Post(workerproto.Cleanup())
	close(c.stop)
	c.port.Terminate()
	c.wg.Wait()
	for _, req := range waiting {
		req.done <- outcome{err: ErrClosed}
	}
	c.logger.Debug("inference client closed")
}

func (c *Client[P, O, R]) registerLocked(prefix string, kind workerproto.RequestKind, modelID string) *pendingRequest {
	c.seq++
	id := fmt.Sprintf("%s-%d-%s", prefix, c.seq, uuid.NewString()[:8])
	req := &pendingRequest{id: id, kind: kind, modelID: modelID, done: make(chan outcome, 1)}
	c.pending[id] = req
	return req
}

func (c *Client[P, O, R]) wait(ctx context.Context, req *pendingRequest) outcome {
	select {
	case out := <-req.done:
		return out
	case <-ctx.Done():
		c.cancel(req.id, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
		return <-req.done
	}
}

func (c *Client[P, O, R]) cancel(id string, reason error) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	if c.currentOp == id {
		c.currentOp = ""
	}
	if c.latestInit == id {
		// The worker may still finish this load; what it holds is unknown.
		c.latestInit = ""
		c.loaded = false
		c.modelID = ""
	}
	c.mu.Unlock()

	if err := c.port.Post(workerproto.Cancel(id)); err != nil {
		c.logger.Debug("cancel not delivered", logging.String(logging.FieldCorrelationID, id), logging.Error(err))
	}
	c.logger.Info("operation cancelled", logging.String(logging.FieldCorrelationID, id))
	req.done <- outcome{err: reason}
}

// settle removes id and delivers out. It returns false when id was already
// settled.
func (c *Client[P, O, R]) settle(id string, out outcome) bool {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	req.done <- out
	return true
}

func (c *Client[P, O, R]) clearCurrent(id string) {
	c.mu.Lock()
	if c.currentOp == id {
		c.currentOp = ""
	}
	c.mu.Unlock()
}

func (c *Client[P, O, R]) drainLocked() []*pendingRequest {
	waiting := make([]*pendingRequest, 0, len(c.pending))
	for id, req := range c.pending {
		waiting = append(waiting, req)
		delete(c.pending, id)
	}
	return waiting
}

func (c *Client[P, O, R]) readLoop() {
	defer c.wg.Done()
	messages := c.port.Messages()
	errs := c.port.Errors()
	for {
		select {
		case <-c.stop:
			return
		case resp, ok := <-messages:
			if !ok {
				c.fail(errors.New("worker exited"))
				return
			}
			c.dispatch(resp)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.fail(err)
		}
	}
}

func (c *Client[P, O, R]) dispatch(resp workerproto.Response) {
	if err := resp.Validate(); err != nil {
		c.logger.Debug("ignoring malformed worker message", logging.Error(err))
		return
	}
	if resp.Fatal() {
		c.fail(&RemoteError{Message: resp.Message})
		return
	}

	c.mu.Lock()
	req, ok := c.pending[resp.CorrelationID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("ignoring message for settled request",
			logging.String(logging.FieldCorrelationID, resp.CorrelationID),
			logging.String("type", string(resp.Type)),
		)
		return
	}

	switch resp.Type {
	case workerproto.KindModelProgress:
		item := c.items.Update(resp.ResourceID, resp.Name, resp.Percent, resp.BytesLoaded, resp.BytesTotal)
		if req.onModel != nil {
			req.onModel(ModelProgress{
				ResourceID: item.ResourceID,
				Name:       item.Name,
				Percent:    item.Percent,
				Loaded:     item.Loaded,
				Total:      item.Total,
				Overall:    c.items.Overall(),
			})
		}
	case workerproto.KindRunProgress:
		if req.sampler.Allow(resp.Stage, resp.Percent) {
			c.logger.Debug("inference progress",
				logging.String(logging.FieldCorrelationID, req.id),
				logging.Float64("percent", resp.Percent),
				logging.String("stage", resp.Stage),
			)
		}
		if req.hooks.OnProgress != nil {
			req.hooks.OnProgress(resp.Percent)
		}
		if resp.ChunkInfo != nil && req.hooks.OnChunkProgress != nil {
			req.hooks.OnChunkProgress(*resp.ChunkInfo)
		}
	case workerproto.KindStageChange:
		if req.hooks.OnStageChange != nil {
			req.hooks.OnStageChange(resp.Stage)
		}
	case workerproto.KindInitializeSuccess:
		modelID := resp.ModelID
		if modelID == "" {
			modelID = req.modelID
		}
		c.mu.Lock()
		if c.latestInit == req.id && c.broken == nil {
			c.modelID = modelID
			c.loaded = true
			c.latestInit = ""
		}
		c.mu.Unlock()
		if c.settle(req.id, outcome{modelID: modelID}) {
			c.logger.Info("model ready",
				logging.String(logging.FieldModelID, modelID),
				logging.String(logging.FieldCorrelationID, req.id),
			)
		}
	case workerproto.KindRunSuccess:
		c.settle(req.id, outcome{result: resp.Result})
	case workerproto.KindError:
		if req.kind == workerproto.KindInitialize {
			c.mu.Lock()
			if c.latestInit == req.id {
				c.loaded = false
				c.modelID = ""
				c.latestInit = ""
			}
			c.mu.Unlock()
		}
		if c.settle(req.id, outcome{err: &RemoteError{Message: resp.Message}}) {
			c.logger.Warn("inference request failed",
				logging.String(logging.FieldEventType, "inference_failed"),
				logging.String(logging.FieldCorrelationID, req.id),
				logging.String(logging.FieldErrorHint, "retry the step or choose another model"),
				logging.String(logging.FieldImpact, "step result unavailable"),
				logging.String("message", resp.Message),
			)
		}
	case workerproto.KindCancelled:
		c.settle(req.id, outcome{err: ErrCancelled})
	}
}

// fail rejects every pending request with ErrWorker and marks the client
// unusable.
func (c *Client[P, O, R]) fail(cause error) {
	c.mu.Lock()
	closed := errors.Is(c.broken, ErrClosed)
	if c.broken == nil {
		c.broken = fmt.Errorf("%w: %w", ErrWorkerUnavailable, cause)
	}
	c.loaded = false
	c.currentOp = ""
	c.latestInit = ""
	waiting := c.drainLocked()
	c.mu.Unlock()

	if !closed {
		logging.ErrorWithContext(c.logger, "worker failed", "worker_fatal",
			logging.Error(cause),
			logging.Int("pending", len(waiting)),
			logging.String(logging.FieldErrorHint, "recreate the inference client"),
		)
	}
	for _, req := range waiting {
		req.done <- outcome{err: fmt.Errorf("%w: %w", ErrWorker, cause)}
	}
}
