package progress

import (
	"math"
	"testing"
)

func TestItemsAggregatesInFirstSeenOrder(t *testing.T) {
	var items Items
	items.Update("onnx/encoder.onnx", "encoder", 0, 50, 100)
	items.Update("config.json", "config", 100, 10, 10)
	items.Update("onnx/encoder.onnx", "", 0, 25, 0)

	snap := items.Snapshot()
	if len(snap) != 2 || snap[0].ResourceID != "onnx/encoder.onnx" || snap[1].ResourceID != "config.json" {
		t.Fatalf("unexpected order %+v", snap)
	}
	if snap[0].Percent != 50 || snap[0].Loaded != 50 || snap[0].Name != "encoder" {
		t.Fatalf("progress must not regress: %+v", snap[0])
	}
	if snap[0].Status != ItemDownloading || snap[1].Status != ItemDone {
		t.Fatalf("unexpected statuses %+v", snap)
	}
	if got := items.Overall(); math.Abs(got-60.0/110.0*100) > 1e-9 {
		t.Fatalf("overall = %v", got)
	}

	items.Done("onnx/encoder.onnx")
	if got := items.Overall(); got != 100 {
		t.Fatalf("overall after done = %v", got)
	}
	items.Reset()
	if len(items.Snapshot()) != 0 || items.Overall() != 0 {
		t.Fatal("reset should clear items")
	}
}

func TestItemsOverallWithoutSizes(t *testing.T) {
	var items Items
	items.Update("a", "", 20, 0, 0)
	items.Update("b", "", 60, 0, 0)
	if got := items.Overall(); got != 40 {
		t.Fatalf("overall = %v, want 40", got)
	}
}
