package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"vidsub/internal/logging"
	"vidsub/internal/progress"
	"vidsub/internal/workerproto"
)

// LoadProgress is one download report from a model loader.
type LoadProgress struct {
	ResourceID string
	Name       string
	Percent    float64
	Loaded     int64
	Total      int64
}

// Capability is the model-specific half of a worker.
type Capability interface {
	// Name labels error messages, e.g. "Transcription".
	Name() string
	// LoadModel makes modelID ready for Run, reporting download progress.
	LoadModel(ctx context.Context, modelID string, report func(LoadProgress)) error
	// Run executes one request. ctx is cancelled when the caller cancels;
	// implementations check it between units of work.
	Run(ctx context.Context, run *Run) (any, error)
	// Release drops the loaded model.
	Release()
}

// Estimator is implemented by capabilities that can predict how long a run
// will take, which paces the synthetic progress estimate.
type Estimator interface {
	Estimate(payload, options json.RawMessage) time.Duration
}

// Run is one inference request as seen by a Capability.
type Run struct {
	CorrelationID string
	ModelID       string
	Payload       json.RawMessage
	Options       json.RawMessage

	tracker *progress.Tracker
}

// Observe feeds a real progress signal into the run's tracker.
func (r *Run) Observe(percent float64) {
	if r.tracker != nil {
		r.tracker.Observe(percent)
	}
}

// Chunk reports completed of total chunks, with an optional text preview.
func (r *Run) Chunk(completed, total int, text string) {
	if r.tracker != nil {
		r.tracker.Chunk(completed, total, text)
	}
}

// worker is the runtime that serves one Capability.
type worker struct {
	capability Capability
	cfg        workerConfig
	out        chan<- workerproto.Response

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	modelID string
	loaded  bool
	queue   []workerproto.Request
	wake    chan struct{}
}

func newWorker(capability Capability, out chan<- workerproto.Response, opts ...WorkerOption) *worker {
	cfg := workerConfig{
		clock:    progress.SystemClock{},
		progress: progress.DefaultConfig(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.logger = logging.NewComponentLogger(cfg.logger, "worker").With(logging.String("capability", capability.Name()))
	return &worker{
		capability: capability,
		cfg:        cfg,
		out:        out,
		active:     make(map[string]context.CancelFunc),
		wake:       make(chan struct{}, 1),
	}
}

// serve handles requests until ctx is cancelled or in is closed, then stops
// every run, waits for them and closes out.
func (w *worker) serve(ctx context.Context, in <-chan workerproto.Request) {
	ctx, cancel := context.WithCancel(ctx)
	w.ctx = ctx
	defer func() {
		cancel()
		w.wg.Wait()
		w.capability.Release()
		close(w.out)
	}()

	w.wg.Add(1)
	go w.loadLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-in:
			if !ok {
				return
			}
			w.handle(ctx, req)
		}
	}
}

func (w *worker) handle(ctx context.Context, req workerproto.Request) {
	if err := req.Validate(); err != nil {
		w.cfg.logger.Warn("invalid worker request",
			logging.String(logging.FieldEventType, "worker_request_invalid"),
			logging.String(logging.FieldErrorHint, "check the client and worker protocol versions"),
			logging.String(logging.FieldImpact, "request ignored"),
			logging.Error(err),
		)
		if req.CorrelationID != "" {
			w.send(workerproto.Failure(req.CorrelationID, err.Error()))
		}
		return
	}
	switch req.Type {
	case workerproto.KindInitialize:
		w.mu.Lock()
		w.active[req.CorrelationID] = func() {}
		w.queue = append(w.queue, req)
		w.mu.Unlock()
		select {
		case w.wake <- struct{}{}:
		default:
		}
	case workerproto.KindRun:
		w.startRun(ctx, req)
	case workerproto.KindCancel:
		w.mu.Lock()
		if stop, ok := w.active[req.CorrelationID]; ok {
			stop()
			delete(w.active, req.CorrelationID)
		}
		w.mu.Unlock()
		w.send(workerproto.Response{Type: workerproto.KindCancelled, CorrelationID: req.CorrelationID})
	case workerproto.KindCleanup:
		w.mu.Lock()
		for id, stop := range w.active {
			stop()
			delete(w.active, id)
		}
		w.queue = nil
		w.loaded = false
		w.modelID = ""
		w.mu.Unlock()
		w.capability.Release()
		w.cfg.logger.Debug("worker cleaned up")
	}
}

// loadLoop loads models one at a time in request order.
func (w *worker) loadLoop(ctx context.Context) {
	defer w.wg.Done()
	defer w.recoverFatal("model loader")
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			req := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()
			w.load(ctx, req)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (w *worker) load(ctx context.Context, req workerproto.Request) {
	id := req.CorrelationID
	defer w.finish(id)
	if !w.isActive(id) {
		return
	}

	w.mu.Lock()
	ready := w.loaded && w.modelID == req.ModelID
	w.mu.Unlock()
	if ready {
		w.reply(id, workerproto.Response{Type: workerproto.KindInitializeSuccess, CorrelationID: id, ModelID: req.ModelID})
		return
	}

	w.mu.Lock()
	switching := w.loaded
	w.loaded = false
	w.modelID = ""
	w.mu.Unlock()
	if switching {
		w.capability.Release()
	}

	started := time.Now()
	err := w.capability.LoadModel(ctx, req.ModelID, func(p LoadProgress) {
		w.reply(id, workerproto.Response{
			Type:          workerproto.KindModelProgress,
			CorrelationID: id,
			ModelID:       req.ModelID,
			Percent:       math.Round(p.Percent*100) / 100,
			BytesLoaded:   p.Loaded,
			BytesTotal:    p.Total,
			ResourceID:    p.ResourceID,
			Name:          p.Name,
		})
	})
	if err != nil {
		w.cfg.logger.Warn("model load failed",
			logging.String(logging.FieldEventType, "model_load_failed"),
			logging.String(logging.FieldModelID, req.ModelID),
			logging.String(logging.FieldErrorHint, "check the model id and network access"),
			logging.String(logging.FieldImpact, "inference unavailable until a model loads"),
			logging.Error(err),
		)
		w.reply(id, workerproto.Failure(id, "Failed to initialize model: "+err.Error()))
		return
	}

	w.mu.Lock()
	w.loaded = true
	w.modelID = req.ModelID
	w.mu.Unlock()
	w.cfg.logger.Info("model loaded",
		logging.String(logging.FieldModelID, req.ModelID),
		logging.Duration("elapsed", time.Since(started)),
	)
	w.reply(id, workerproto.Response{Type: workerproto.KindInitializeSuccess, CorrelationID: id, ModelID: req.ModelID})
}

func (w *worker) startRun(ctx context.Context, req workerproto.Request) {
	id := req.CorrelationID
	w.mu.Lock()
	if !w.loaded {
		w.mu.Unlock()
		w.send(workerproto.Failure(id, w.capability.Name()+" model is not initialized"))
		return
	}
	modelID := w.modelID
	runCtx, cancel := context.WithCancel(ctx)
	w.active[id] = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()
		defer w.finish(id)
		w.execute(runCtx, &Run{
			CorrelationID: id,
			ModelID:       modelID,
			Payload:       req.Payload,
			Options:       req.Options,
		})
	}()
}

func (w *worker) execute(ctx context.Context, run *Run) {
	id := run.CorrelationID
	cfg := w.cfg.progress
	if estimator, ok := w.capability.(Estimator); ok {
		cfg.Interval = progress.IntervalFor(estimator.Estimate(run.Payload, run.Options))
	}
	tracker := progress.New(cfg, w.cfg.clock, func(u progress.Update) {
		if u.StageChanged {
			w.reply(id, workerproto.Response{Type: workerproto.KindStageChange, CorrelationID: id, Stage: string(u.Stage)})
		}
		w.reply(id, workerproto.Response{
			Type:          workerproto.KindRunProgress,
			CorrelationID: id,
			Percent:       math.Round(u.Percent),
			Stage:         string(u.Stage),
			ChunkInfo:     u.Chunk,
		})
	})
	run.tracker = tracker
	defer tracker.Stop()

	var (
		result   any
		err      error
		panicked bool
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				w.cfg.logger.Error("capability panicked",
					logging.String(logging.FieldEventType, "worker_fatal"),
					logging.String(logging.FieldCorrelationID, id),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("%v", r)
			}
		}()
		tracker.Start()
		result, err = w.capability.Run(ctx, run)
	}()
	if panicked {
		tracker.Stop()
		w.send(workerproto.Failure("", fmt.Sprintf("worker crashed: %s: %v", w.capability.Name(), err)))
		return
	}

	if !w.isActive(id) {
		return
	}
	if err != nil {
		tracker.Stop()
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		w.reply(id, workerproto.Failure(id, w.capability.Name()+" failed: "+err.Error()))
		return
	}
	resp, err := workerproto.Success(id, result)
	if err != nil {
		tracker.Stop()
		w.reply(id, workerproto.Failure(id, w.capability.Name()+" failed: "+err.Error()))
		return
	}
	tracker.Finalize()
	tracker.Finish()
	w.reply(id, resp)
}

func (w *worker) isActive(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[id]
	return ok
}

func (w *worker) finish(id string) {
	w.mu.Lock()
	delete(w.active, id)
	w.mu.Unlock()
}

// reply sends resp only while id is still active, so cancelled requests
// receive nothing after their cancellation ack.
func (w *worker) reply(id string, resp workerproto.Response) {
	if !w.isActive(id) {
		return
	}
	w.send(resp)
}

func (w *worker) send(resp workerproto.Response) {
	select {
	case w.out <- resp:
	case <-w.ctx.Done():
	}
}

func (w *worker) recoverFatal(where string) {
	if r := recover(); r != nil {
		w.cfg.logger.Error("worker crashed",
			logging.String(logging.FieldEventType, "worker_fatal"),
			logging.String("where", where),
			logging.Any("panic", r),
		)
		w.send(workerproto.Failure("", fmt.Sprintf("worker crashed in %s: %v", where, r)))
	}
}
