package inference

import (
	"context"
	"log/slog"
	"sync"

	"vidsub/internal/progress"
	"vidsub/internal/workerproto"
)

// Port is the client's only view of a worker.
type Port interface {
	// Post delivers a request to the worker without waiting for its answer.
	Post(req workerproto.Request) error
	// Messages yields worker responses in production order. It is closed
	// when the worker is gone.
	Messages() <-chan workerproto.Response
	// Errors yields transport-level failures not tied to a request.
	Errors() <-chan error
	// Terminate stops the worker and releases its resources. It is safe to
	// call more than once.
	Terminate()
}

// WorkerOption configures a worker runtime.
type WorkerOption func(*workerConfig)

type workerConfig struct {
	clock    progress.Clock
	progress progress.Config
	logger   *slog.Logger
}

// WithClock injects the time source used by run progress trackers.
func WithClock(clock progress.Clock) WorkerOption {
	return func(c *workerConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithProgressConfig overrides the progress tracker tuning.
func WithProgressConfig(cfg progress.Config) WorkerOption {
	return func(c *workerConfig) { c.progress = cfg }
}

// WithWorkerLogger sets the worker runtime logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(c *workerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// chanPort connects a client to an in-process worker through channels. Only
// encoded JSON crosses the boundary.
type chanPort struct {
	in     chan workerproto.Request
	out    chan workerproto.Response
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Spawn starts capability in its own goroutines and returns the port that
// reaches it. The worker stops when ctx is cancelled or the port is
// terminated.
func Spawn(ctx context.Context, capability Capability, opts ...WorkerOption) Port {
	ctx, cancel := context.WithCancel(ctx)
	p := &chanPort{
		in:     make(chan workerproto.Request, 16),
		out:    make(chan workerproto.Response, 64),
		errs:   make(chan error),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w := newWorker(capability, p.out, opts...)
	go func() {
		defer close(p.done)
		w.serve(ctx, p.in)
	}()
	return p
}

func (p *chanPort) Post(req workerproto.Request) error {
	select {
	case <-p.done:
		return ErrWorkerUnavailable
	default:
	}
	select {
	case p.in <- req:
		return nil
	case <-p.done:
		return ErrWorkerUnavailable
	}
}

func (p *chanPort) Messages() <-chan workerproto.Response { return p.out }

func (p *chanPort) Errors() <-chan error { return p.errs }

func (p *chanPort) Terminate() {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
}
