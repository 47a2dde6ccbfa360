package spool

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/toolgate/internal/telemetry"
)

func writeBatchFile(t *testing.T, dir, name string, b telemetry.Batch) string {
	t.Helper()
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func usageBatch() telemetry.Batch {
	return telemetry.Batch{
		Usage: []telemetry.UsageRecord{
			{Capability: "status", Tier: "community", Allowed: true, At: time.Now().UTC()},
		},
	}
}

func TestSweepRemovesDeliveredFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeBatchFile(t, dir, "batch-1.json", usageBatch())

	var pushed []telemetry.Batch
	w := NewWatcher(dir, func(_ context.Context, b telemetry.Batch) telemetry.Result {
		pushed = append(pushed, b)
		return telemetry.Result{Delivered: true}
	}, slog.New(slog.DiscardHandler))

	w.Sweep(context.Background())

	if len(pushed) != 1 || len(pushed[0].Usage) != 1 {
		t.Fatalf("pushed = %+v", pushed)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("delivered file should be removed")
	}
}

func TestSweepRemovesQueuedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeBatchFile(t, dir, "batch-1.json", usageBatch())

	w := NewWatcher(dir, func(context.Context, telemetry.Batch) telemetry.Result {
		return telemetry.Result{Queued: true, LastError: "HTTP 503"}
	}, slog.New(slog.DiscardHandler))

	w.Sweep(context.Background())

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("durably queued file should be removed; the queue owns it now")
	}
}

func TestSweepKeepsFailedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeBatchFile(t, dir, "batch-1.json", usageBatch())

	w := NewWatcher(dir, func(context.Context, telemetry.Batch) telemetry.Result {
		return telemetry.Result{LastError: "rejected: HTTP 400"}
	}, slog.New(slog.DiscardHandler))

	w.Sweep(context.Background())

	if _, err := os.Stat(path); err != nil {
		t.Error("failed file should stay in the spool for the next sweep")
	}
}

func TestSweepParksMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(path, []byte("{nope"), 0600); err != nil {
		t.Fatal(err)
	}

	calls := 0
	w := NewWatcher(dir, func(context.Context, telemetry.Batch) telemetry.Result {
		calls++
		return telemetry.Result{Delivered: true}
	}, slog.New(slog.DiscardHandler))

	w.Sweep(context.Background())

	if calls != 0 {
		t.Error("malformed file should not reach the push path")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("malformed file should be renamed aside")
	}
	if _, err := os.Stat(path + ".bad"); err != nil {
		t.Error("parked copy missing")
	}
}

func TestSweepIgnoresTmpFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "partial.json.tmp"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	calls := 0
	w := NewWatcher(dir, func(context.Context, telemetry.Batch) telemetry.Result {
		calls++
		return telemetry.Result{Delivered: true}
	}, slog.New(slog.DiscardHandler))

	w.Sweep(context.Background())
	if calls != 0 {
		t.Error("partial writes must be ignored")
	}
}

func TestRunPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()

	pushed := make(chan telemetry.Batch, 1)
	w := NewWatcher(dir, func(_ context.Context, b telemetry.Batch) telemetry.Result {
		pushed <- b
		return telemetry.Result{Delivered: true}
	}, slog.New(slog.DiscardHandler))
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)
	writeBatchFile(t, dir, "late.json", usageBatch())

	select {
	case b := <-pushed:
		if len(b.Usage) != 1 {
			t.Errorf("pushed batch = %+v", b)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("watcher never saw the new file")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
