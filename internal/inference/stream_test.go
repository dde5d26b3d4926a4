package inference

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"vidsub/internal/progress"
	"vidsub/internal/workerproto"
)

type pipeConn struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (p pipeConn) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func TestStreamPortRoundTrip(t *testing.T) {
	toWorker, fromClient := io.Pipe()
	toClient, fromWorker := io.Pipe()

	serveErr := make(chan error, 1)
	go func() {
		err := ServeStream(context.Background(), toWorker, fromWorker, newFakeCapability(),
			WithClock(progress.NewManualClock(time.Unix(0, 0))))
		_ = fromWorker.Close()
		serveErr <- err
	}()

	port := NewStreamPort(pipeConn{Reader: toClient, Writer: fromClient, closers: []io.Closer{fromClient, toClient}})
	client := NewClient[echoPayload, echoOptions, echoResult](port)

	ctx := context.Background()
	if _, err := client.InitializeModel(ctx, "model-a", nil); err != nil {
		t.Fatalf("InitializeModel: %v", err)
	}
	var last float64
	got, err := client.RunInference(ctx, echoPayload{Text: "over the wire"}, echoOptions{}, RunHooks{
		OnProgress: func(p float64) { last = p },
	})
	if err != nil {
		t.Fatalf("RunInference: %v", err)
	}
	if got.Echo != "over the wire" || last != 100 {
		t.Fatalf("unexpected result %+v (last progress %v)", got, last)
	}

	client.Cleanup()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("ServeStream: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cleanup")
	}
}

func TestServeStreamReportsInvalidRequests(t *testing.T) {
	input := strings.NewReader(`{"type":"run"}` + "\n" + `{"type":"run","correlationId":"run-1"}` + "\n")
	var out strings.Builder
	if err := ServeStream(context.Background(), input, &out, newFakeCapability()); err != nil {
		t.Fatalf("ServeStream: %v", err)
	}
	dec := workerproto.NewDecoder(strings.NewReader(out.String()))
	resp, err := dec.DecodeResponse()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Type != workerproto.KindError || resp.CorrelationID != "run-1" || resp.Message != "Fake model is not initialized" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, err := dec.DecodeResponse(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected a single response, got %v", err)
	}
}

func TestServeStreamReportsMalformedStreamAsFatal(t *testing.T) {
	input := strings.NewReader(`{"type":"cancel","correlationId":"run-1"}` + "\n" + "{not json\n")
	var out strings.Builder
	if err := ServeStream(context.Background(), input, &out, newFakeCapability()); err == nil {
		t.Fatal("expected ServeStream to report the malformed request")
	}
	dec := workerproto.NewDecoder(strings.NewReader(out.String()))
	var last workerproto.Response
	for {
		resp, err := dec.DecodeResponse()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		last = resp
	}
	if !last.Fatal() || !strings.Contains(last.Message, "worker stopped reading requests") {
		t.Fatalf("expected a final fatal error response, got %+v", last)
	}
}
