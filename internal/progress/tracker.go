package progress

import (
	"math"
	"sync"
	"time"

	"vidsub/internal/workerproto"
)

// Stage is a coarse phase of a tracked operation.
type Stage string

const (
	StageLoading    Stage = "loading"
	StageProcessing Stage = "processing"
	StageFinalizing Stage = "finalizing"
	StageComplete   Stage = "complete"
)

func (s Stage) rank() int {
	switch s {
	case StageProcessing:
		return 1
	case StageFinalizing:
		return 2
	case StageComplete:
		return 3
	default:
		return 0
	}
}

// Update is one emitted progress value.
type Update struct {
	Percent      float64
	Stage        Stage
	StageChanged bool
	Chunk        *workerproto.ChunkInfo
}

// Config tunes the synthetic estimate.
type Config struct {
	// Initial is emitted by Start so callers never sit at 0.
	Initial float64
	// Ceiling bounds synthetic and observed progress; only Finalize and
	// chunk completion may go past it.
	Ceiling      float64
	ProcessingAt float64
	FinalizingAt float64
	// Steps is the synthetic increment per tick for each stage.
	Steps    map[Stage]float64
	Interval time.Duration
}

const (
	chunkBandLow  = 10.0
	chunkBandHigh = 95.0
	finalizingAt  = 90.0

	minInterval    = 250 * time.Millisecond
	maxInterval    = 2 * time.Second
	syntheticTicks = 40
)

// DefaultConfig returns the stock tuning: 5% immediately, +2% per tick while
// loading, capped at 85%.
func DefaultConfig() Config {
	return Config{
		Initial:      5,
		Ceiling:      85,
		ProcessingAt: 15,
		FinalizingAt: 70,
		Steps: map[Stage]float64{
			StageLoading:    2,
			StageProcessing: 1.5,
			StageFinalizing: 0.5,
		},
		Interval: minInterval,
	}
}

// IntervalFor scales the tick interval to the estimated amount of work so the
// synthetic estimate reaches the ceiling roughly when the work finishes.
func IntervalFor(estimate time.Duration) time.Duration {
	if estimate <= 0 {
		return minInterval
	}
	return min(max(estimate/syntheticTicks, minInterval), maxInterval)
}

// Tracker produces monotonic progress for one operation. Emit is called
// synchronously with the tracker lock held and must not call back into the
// tracker.
type Tracker struct {
	cfg   Config
	clock Clock
	emit  func(Update)

	mu      sync.Mutex
	current float64
	stage   Stage
	started time.Time
	running bool
	done    bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns an idle tracker. A nil clock uses SystemClock.
func New(cfg Config, clock Clock, emit func(Update)) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	if emit == nil {
		emit = func(Update) {}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = minInterval
	}
	if cfg.Ceiling <= 0 || cfg.Ceiling >= 100 {
		cfg.Ceiling = DefaultConfig().Ceiling
	}
	return &Tracker{cfg: cfg, clock: clock, emit: emit, stage: StageLoading}
}

// Start emits the initial value and begins ticking. Calling Start twice is a
// no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.done {
		return
	}
	t.running = true
	t.started = t.clock.Now()
	t.emit(Update{Percent: t.advanceLocked(t.cfg.Initial), Stage: t.stage, StageChanged: true})

	ticker := t.clock.NewTicker(t.cfg.Interval)
	t.stop = make(chan struct{})
	t.wg.Add(1)
	go t.loop(ticker, t.stop)
}

func (t *Tracker) loop(ticker Ticker, stop <-chan struct{}) {
	defer t.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			t.tick()
		}
	}
}

func (t *Tracker) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || !t.running {
		return
	}
	step := t.cfg.Steps[t.stage]
	if step <= 0 {
		return
	}
	target := math.Min(t.current+step, t.cfg.Ceiling)
	if target <= t.current {
		return
	}
	t.emitLocked(target, nil)
}

// Observe feeds a real progress signal. Values at or below the current
// estimate are ignored.
func (t *Tracker) Observe(percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	target := math.Min(percent, t.cfg.Ceiling)
	if target <= t.current {
		return
	}
	t.emitLocked(target, nil)
}

// Chunk reports that completed of total chunks are done, scaling the value
// into the 10-95% band. text is an optional preview of the chunk's result.
func (t *Tracker) Chunk(completed, total int, text string) {
	if total <= 0 {
		return
	}
	completed = min(max(completed, 0), total)
	value := chunkBandLow + float64(completed)/float64(total)*(chunkBandHigh-chunkBandLow)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	info := &workerproto.ChunkInfo{
		CurrentChunk:  completed,
		TotalChunks:   total,
		ChunkProgress: math.Round(value),
		ChunkText:     text,
	}
	t.emitLocked(math.Max(t.current, value), info)
}

// Finalize stops the synthetic estimate and moves to the finalizing stage.
func (t *Tracker) Finalize() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.running = false
	if finalizingAt > t.current {
		t.emitLocked(finalizingAt, nil)
	}
	if t.stage.rank() < StageFinalizing.rank() {
		t.stage = StageFinalizing
		t.emit(Update{Percent: t.current, Stage: t.stage, StageChanged: true})
	}
	t.mu.Unlock()
	t.halt()
}

// Finish emits 100 in the complete stage exactly once and stops the tracker.
func (t *Tracker) Finish() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.running = false
	t.current = 100
	t.stage = StageComplete
	t.emit(Update{Percent: 100, Stage: StageComplete, StageChanged: true})
	t.mu.Unlock()
	t.halt()
}

// Stop ends tracking without emitting anything further. Used on error and
// cancellation.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.done = true
	t.running = false
	t.mu.Unlock()
	t.halt()
}

// Percent returns the last emitted value.
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Stage returns the current stage.
func (t *Tracker) Stage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Elapsed returns the time since Start.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started.IsZero() {
		return 0
	}
	return t.clock.Now().Sub(t.started)
}

func (t *Tracker) halt() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	t.wg.Wait()
}

func (t *Tracker) emitLocked(percent float64, chunk *workerproto.ChunkInfo) {
	previous := t.stage
	value := t.advanceLocked(percent)
	t.emit(Update{Percent: value, Stage: t.stage, StageChanged: t.stage != previous, Chunk: chunk})
}

// advanceLocked raises current to percent and derives the stage from it.
// Stages never move backwards.
func (t *Tracker) advanceLocked(percent float64) float64 {
	if percent > t.current {
		t.current = math.Min(percent, 99)
	}
	next := StageLoading
	switch {
	case t.current >= t.cfg.FinalizingAt:
		next = StageFinalizing
	case t.current >= t.cfg.ProcessingAt:
		next = StageProcessing
	}
	if next.rank() > t.stage.rank() {
		t.stage = next
	}
	return t.current
}
