package inference

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"vidsub/internal/workerproto"
)

func TestInitializeAndRun(t *testing.T) {
	capability := newFakeCapability()
	client := newTestClient(t, capability)
	ctx := context.Background()

	var models []ModelProgress
	modelID, err := client.InitializeModel(ctx, "model-a", func(p ModelProgress) { models = append(models, p) })
	if err != nil {
		t.Fatalf("InitializeModel: %v", err)
	}
	if modelID != "model-a" || !client.IsModelLoaded() || client.CurrentModelID() != "model-a" {
		t.Fatalf("unexpected loaded state %q %v %q", modelID, client.IsModelLoaded(), client.CurrentModelID())
	}
	if len(models) != 2 || models[1].Percent != 100 || models[1].Overall != 100 {
		t.Fatalf("unexpected model progress %+v", models)
	}
	if items := client.ProgressItems(); len(items) != 1 || items[0].Name != "model.onnx" {
		t.Fatalf("unexpected progress items %+v", items)
	}

	var percents []float64
	var stages []string
	got, err := client.RunInference(ctx, echoPayload{Text: "hola"}, echoOptions{}, RunHooks{
		OnProgress:    func(p float64) { percents = append(percents, p) },
		OnStageChange: func(s string) { stages = append(stages, s) },
	})
	if err != nil {
		t.Fatalf("RunInference: %v", err)
	}
	if got != (echoResult{Echo: "hola", ModelID: "model-a"}) {
		t.Fatalf("unexpected result %+v", got)
	}
	if !slices.IsSorted(percents) || percents[len(percents)-1] != 100 {
		t.Fatalf("progress must be non-decreasing and end at 100: %v", percents)
	}
	hundreds := 0
	for _, p := range percents {
		if p == 100 {
			hundreds++
		}
	}
	if hundreds != 1 {
		t.Fatalf("100 must be emitted exactly once: %v", percents)
	}
	if want := []string{"loading", "finalizing", "complete"}; !slices.Equal(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	if client.Pending() != 0 || client.CurrentOperationID() != "" {
		t.Fatalf("request not cleared: pending=%d current=%q", client.Pending(), client.CurrentOperationID())
	}
}

func TestInitializeShortCircuitsLoadedModel(t *testing.T) {
	capability := newFakeCapability()
	client := newTestClient(t, capability)
	for range 3 {
		if _, err := client.InitializeModel(context.Background(), "model-a", nil); err != nil {
			t.Fatalf("InitializeModel: %v", err)
		}
	}
	if capability.loadCount() != 1 {
		t.Fatalf("expected one load, got %d", capability.loadCount())
	}
}

func TestRunBeforeInitializeFailsFast(t *testing.T) {
	client := newTestClient(t, newFakeCapability())
	_, err := client.RunInference(context.Background(), echoPayload{}, echoOptions{}, RunHooks{})
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
	if client.Pending() != 0 {
		t.Fatal("fail-fast must not register a request")
	}
}

func TestConcurrentInitializeLatestWins(t *testing.T) {
	capability := newFakeCapability()
	gateA := capability.gate("model-a")
	gateB := capability.gate("model-b")
	client := newTestClient(t, capability)
	ctx := context.Background()

	results := make(chan result[string], 3)
	initialize := func(model string) {
		id, err := client.InitializeModel(ctx, model, nil)
		results <- result[string]{value: id, err: err}
	}
	go initialize("model-a")
	eventually(t, "first init registered", func() bool { return client.Pending() == 1 })
	go initialize("model-a")
	eventually(t, "second init registered", func() bool { return client.Pending() == 2 })
	go initialize("model-b")
	eventually(t, "third init registered", func() bool { return client.Pending() == 3 })

	close(gateA)
	close(gateB)

	resolved := map[string]int{}
	for range 3 {
		r := await(t, results)
		if r.err != nil {
			t.Fatalf("InitializeModel: %v", r.err)
		}
		resolved[r.value]++
	}
	if resolved["model-a"] != 2 || resolved["model-b"] != 1 {
		t.Fatalf("each call must resolve with its own model: %v", resolved)
	}
	if got := client.CurrentModelID(); got != "model-b" {
		t.Fatalf("CurrentModelID = %q, want model-b", got)
	}
}

func TestInitializeLoadedModelWaitsForNewerSwitch(t *testing.T) {
	capability := newFakeCapability()
	client := newTestClient(t, capability)
	ctx := context.Background()

	if _, err := client.InitializeModel(ctx, "model-a", nil); err != nil {
		t.Fatalf("InitializeModel(model-a): %v", err)
	}
	gateB := capability.gate("model-b")

	results := make(chan result[string], 2)
	go func() {
		id, err := client.InitializeModel(ctx, "model-b", nil)
		results <- result[string]{value: id, err: err}
	}()
	eventually(t, "switch to model-b registered", func() bool { return client.Pending() == 1 })

	back := make(chan result[string], 1)
	go func() {
		id, err := client.InitializeModel(ctx, "model-a", nil)
		back <- result[string]{value: id, err: err}
	}()
	eventually(t, "return to model-a registered", func() bool { return client.Pending() == 2 })

	close(gateB)
	if r := await(t, results); r.err != nil || r.value != "model-b" {
		t.Fatalf("model-b init = %q, %v", r.value, r.err)
	}
	if r := await(t, back); r.err != nil || r.value != "model-a" {
		t.Fatalf("model-a init = %q, %v", r.value, r.err)
	}
	if got := client.CurrentModelID(); got != "model-a" {
		t.Fatalf("CurrentModelID = %q, want model-a", got)
	}
	got, err := client.RunInference(ctx, echoPayload{Text: "x"}, echoOptions{}, RunHooks{})
	if err != nil {
		t.Fatalf("RunInference: %v", err)
	}
	if got.ModelID != "model-a" {
		t.Fatalf("run executed on %q, want model-a", got.ModelID)
	}
	if n := capability.loadCount(); n != 3 {
		t.Fatalf("expected three loads (a, b, a), got %d", n)
	}
}

func TestCancelOperationSettlesImmediately(t *testing.T) {
	capability := newFakeCapability()
	started := make(chan struct{})
	capability.run = func(ctx context.Context, _ *Run) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := newTestClient(t, capability)
	if _, err := client.InitializeModel(context.Background(), "model-a", nil); err != nil {
		t.Fatalf("InitializeModel: %v", err)
	}

	results := make(chan result[echoResult], 1)
	go func() {
		r, err := client.RunInference(context.Background(), echoPayload{}, echoOptions{}, RunHooks{})
		results <- result[echoResult]{value: r, err: err}
	}()
	<-started
	id := client.CurrentOperationID()
	if id == "" {
		t.Fatal("expected a current operation id")
	}

	client.CancelOperation()
	if r := await(t, results); !errors.Is(r.err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", r.err)
	}
	client.CancelOperation(id)
	client.CancelOperation("run-unknown")
	if client.Pending() != 0 || client.CurrentOperationID() != "" {
		t.Fatal("cancelled request still tracked")
	}

	// The worker still serves new work after a cancellation.
	capability.run = nil
	if _, err := client.RunInference(context.Background(), echoPayload{Text: "again"}, echoOptions{}, RunHooks{}); err != nil {
		t.Fatalf("RunInference after cancel: %v", err)
	}
}

func TestContextCancellationCancelsRun(t *testing.T) {
	capability := newFakeCapability()
	started := make(chan struct{})
	capability.run = func(ctx context.Context, _ *Run) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := newTestClient(t, capability)
	if _, err := client.InitializeModel(context.Background(), "model-a", nil); err != nil {
		t.Fatalf("InitializeModel: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan result[echoResult], 1)
	go func() {
		r, err := client.RunInference(ctx, echoPayload{}, echoOptions{}, RunHooks{})
		results <- result[echoResult]{value: r, err: err}
	}()
	<-started
	cancel()
	r := await(t, results)
	if !errors.Is(r.err, ErrCancelled) || !errors.Is(r.err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", r.err)
	}
}

func TestRunAndLoadErrorsCarryWorkerMessage(t *testing.T) {
	capability := newFakeCapability()
	capability.loadErrs["broken"] = errors.New("404 not found")
	capability.run = func(context.Context, *Run) (any, error) { return nil, errors.New("out of memory") }
	client := newTestClient(t, capability)
	ctx := context.Background()

	_, err := client.InitializeModel(ctx, "broken", nil)
	if !isRemote(err, "Failed to initialize model: 404 not found") {
		t.Fatalf("unexpected init error %v", err)
	}
	if client.IsModelLoaded() {
		t.Fatal("failed init must leave no model loaded")
	}

	if _, err := client.InitializeModel(ctx, "model-a", nil); err != nil {
		t.Fatalf("InitializeModel: %v", err)
	}
	_, err = client.RunInference(ctx, echoPayload{}, echoOptions{}, RunHooks{})
	if !isRemote(err, "Fake failed: out of memory") {
		t.Fatalf("unexpected run error %v", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Fatal("failure must not look like cancellation")
	}
}

func TestWorkerPanicRejectsAllPending(t *testing.T) {
	capability := newFakeCapability()
	gate := capability.gate("model-b")
	defer close(gate)
	proceed := make(chan struct{})
	started := make(chan struct{})
	capability.run = func(context.Context, *Run) (any, error) {
		close(started)
		<-proceed
		panic("segfault in model")
	}
	client := newTestClient(t, capability)
	ctx := context.Background()
	if _, err := client.InitializeModel(ctx, "model-a", nil); err != nil {
		t.Fatalf("InitializeModel: %v", err)
	}

	runs := make(chan result[echoResult], 1)
	go func() {
		r, err := client.RunInference(ctx, echoPayload{}, echoOptions{}, RunHooks{})
		runs <- result[echoResult]{value: r, err: err}
	}()
	<-started
	inits := make(chan result[string], 1)
	go func() {
		id, err := client.InitializeModel(ctx, "model-b", nil)
		inits <- result[string]{value: id, err: err}
	}()
	eventually(t, "init registered", func() bool { return client.Pending() == 2 })
	close(proceed)

	if r := await(t, runs); !errors.Is(r.err, ErrWorker) {
		t.Fatalf("expected ErrWorker, got %v", r.err)
	}
	if r := await(t, inits); !errors.Is(r.err, ErrWorker) {
		t.Fatalf("pending init should be rejected with ErrWorker, got %v", r.err)
	}
	if _, err := client.InitializeModel(ctx, "model-a", nil); !errors.Is(err, ErrWorkerUnavailable) {
		t.Fatalf("expected ErrWorkerUnavailable after fatal error, got %v", err)
	}
}

func TestCleanupReleasesWaiters(t *testing.T) {
	capability := newFakeCapability()
	started := make(chan struct{})
	capability.run = func(ctx context.Context, _ *Run) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := newTestClient(t, capability)
	if _, err := client.InitializeModel(context.Background(), "model-a", nil); err != nil {
		t.Fatalf("InitializeModel: %v", err)
	}
	results := make(chan result[echoResult], 1)
	go func() {
		r, err := client.RunInference(context.Background(), echoPayload{}, echoOptions{}, RunHooks{})
		results <- result[echoResult]{value: r, err: err}
	}()
	<-started

	client.Cleanup()
	client.Cleanup()
	if r := await(t, results); !errors.Is(r.err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", r.err)
	}
	if client.IsModelLoaded() || client.CurrentModelID() != "" {
		t.Fatal("cleanup must reset loaded state")
	}
	if _, err := client.InitializeModel(context.Background(), "model-a", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after cleanup, got %v", err)
	}
	capability.mu.Lock()
	released := capability.released
	capability.mu.Unlock()
	if released == 0 {
		t.Fatal("cleanup must release the model")
	}
}

func TestChunkProgressIsForwarded(t *testing.T) {
	capability := newFakeCapability()
	capability.run = func(_ context.Context, run *Run) (any, error) {
		run.Chunk(1, 2, "hola")
		run.Chunk(2, 2, "mundo")
		return echoResult{Echo: "hola mundo"}, nil
	}
	client := newTestClient(t, capability)
	if _, err := client.InitializeModel(context.Background(), "model-a", nil); err != nil {
		t.Fatalf("InitializeModel: %v", err)
	}
	var mu sync.Mutex
	var chunks []workerproto.ChunkInfo
	_, err := client.RunInference(context.Background(), echoPayload{}, echoOptions{}, RunHooks{
		OnChunkProgress: func(info workerproto.ChunkInfo) {
			mu.Lock()
			chunks = append(chunks, info)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("RunInference: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 2 || chunks[0].ChunkText != "hola" || chunks[1].CurrentChunk != 2 || chunks[1].ChunkProgress != 95 {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}
