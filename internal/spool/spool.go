// Package spool feeds the telemetry client from a drop directory.
// Record producers write batch files into the spool; the watcher
// pushes each batch and removes the file once its records are either
// delivered or durably queued, so producers never participate in
// delivery or retry logic.
package spool

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/toolgate/internal/telemetry"
)

// debounceDefault is the default debounce interval for file events.
const debounceDefault = 200 * time.Millisecond

// pollDefault is the polling interval when fsnotify is unavailable.
const pollDefault = 5 * time.Second

// PushFunc hands a batch to the telemetry client.
type PushFunc func(context.Context, telemetry.Batch) telemetry.Result

// Watcher watches the spool directory for new batch files.
type Watcher struct {
	dir      string
	push     PushFunc
	log      *slog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher over the spool directory.
func NewWatcher(dir string, push PushFunc, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		push:     push,
		log:      log,
		debounce: debounceDefault,
	}
}

// Run processes existing files, then watches for new ones. Blocks
// until ctx is cancelled. Falls back to polling when fsnotify cannot
// watch the directory.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0750); err != nil {
		return err
	}

	// Files that arrived while the daemon was down.
	w.Sweep(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("fsnotify unavailable, falling back to polling", "error", err)
		return w.poll(ctx)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		w.log.Warn("cannot watch spool, falling back to polling", "error", err)
		return w.poll(ctx)
	}

	// ready accumulates paths that passed debounce; a single timer
	// resets on each event and flushes the whole set when it fires.
	var mu sync.Mutex
	ready := make(map[string]bool)

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		mu.Unlock()

		for _, p := range batch {
			w.process(ctx, p)
		}
	}

	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isBatchFile(event.Name) {
				continue
			}

			mu.Lock()
			ready[event.Name] = true
			mu.Unlock()

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("spool watch error", "error", err)
		}
	}
}

// Sweep processes every batch file currently in the spool. Also
// called periodically so files that failed delivery get re-attempted.
func (w *Watcher) Sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn("read spool dir", "error", err)
		}
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if isBatchFile(path) {
			w.process(ctx, path)
		}
	}
}

// poll is the fsnotify fallback: sweep on a fixed interval.
func (w *Watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(pollDefault)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// process pushes one batch file. The file is removed when its records
// are delivered or safely queued; kept for the next sweep otherwise.
func (w *Watcher) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("read spool file", "path", path, "error", err)
		return
	}

	var batch telemetry.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		// Producer wrote garbage; park it out of the way so the
		// sweep stops re-reading it.
		w.log.Warn("malformed spool file, renaming aside", "path", path, "error", err)
		_ = os.Rename(path, path+".bad")
		return
	}

	res := w.push(ctx, batch)
	if res.Delivered || res.Queued {
		if err := os.Remove(path); err != nil {
			w.log.Warn("remove spool file", "path", path, "error", err)
		}
		return
	}
	w.log.Warn("spool push failed, keeping file", "path", path, "error", res.LastError)
}

// isBatchFile returns true for .json files, excluding .tmp partial
// writes.
func isBatchFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp")
}
