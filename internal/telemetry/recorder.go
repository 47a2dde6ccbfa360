package telemetry

import (
	"context"
	"sync"
	"time"
)

// Recorder accumulates records produced during serving and flushes
// them as one batch. Producers call the Record methods from concurrent
// tool invocations; the serve loop calls Flush on a timer and at
// shutdown.
type Recorder struct {
	mu      sync.Mutex
	pending Batch
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordUsage notes a gated capability invocation.
func (r *Recorder) RecordUsage(capability, tierLabel string, allowed bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.Usage = append(r.pending.Usage, UsageRecord{
		Capability: capability,
		Tier:       tierLabel,
		Allowed:    allowed,
		At:         at,
	})
}

// RecordAudit notes a gating decision worth keeping.
func (r *Recorder) RecordAudit(capability, decision, reason string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.Audit = append(r.pending.Audit, AuditRecord{
		Capability: capability,
		Decision:   decision,
		Reason:     reason,
		At:         at,
	})
}

// Pending returns how many records are waiting for a flush.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := r.pending.Counts()
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

// Flush pushes the accumulated batch through the client. Records that
// fail to deliver are either durably queued by the client or dropped
// by it; they are never re-accumulated here, so a flood of failures
// cannot grow process memory.
func (r *Recorder) Flush(ctx context.Context, c *Client) Result {
	r.mu.Lock()
	batch := r.pending
	r.pending = Batch{}
	r.mu.Unlock()

	if batch.Empty() {
		return Result{Delivered: true, Accepted: map[string]int{}}
	}
	return c.Push(ctx, batch)
}
