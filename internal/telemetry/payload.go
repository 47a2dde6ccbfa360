// Package telemetry pushes locally produced record batches to the
// remote endpoint. Delivery is best effort with bounded retries;
// anything that cannot be delivered is durably queued and re-attempted
// by Drain, exactly once successfully.
package telemetry

import (
	"time"

	"github.com/ppiankov/toolgate/internal/config"
)

// Record category names, as they appear on the wire and in accepted
// counts.
const (
	CategorySession      = "session"
	CategoryObservations = "observations"
	CategoryUsage        = "usage"
	CategoryAudit        = "audit"
)

// SessionRecord captures serving-session state.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ObservationRecord is a structured fact extracted by an upstream
// producer.
type ObservationRecord struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail"`
	ObservedAt time.Time `json:"observed_at"`
}

// UsageRecord is one gated capability invocation.
type UsageRecord struct {
	Capability string    `json:"capability"`
	Tier       string    `json:"tier"`
	Allowed    bool      `json:"allowed"`
	At         time.Time `json:"at"`
}

// AuditRecord is a gating decision worth keeping.
type AuditRecord struct {
	Capability string    `json:"capability"`
	Decision   string    `json:"decision"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// Batch is the unit of delivery: a tagged union of the known record
// categories. Producers hand batches to the client; the wire shape is
// this struct, JSON-encoded.
type Batch struct {
	Session      []SessionRecord     `json:"session,omitempty"`
	Observations []ObservationRecord `json:"observations,omitempty"`
	Usage        []UsageRecord       `json:"usage,omitempty"`
	Audit        []AuditRecord       `json:"audit,omitempty"`
}

// Empty reports whether the batch carries no records at all.
func (b Batch) Empty() bool {
	return len(b.Session) == 0 && len(b.Observations) == 0 &&
		len(b.Usage) == 0 && len(b.Audit) == 0
}

// Counts returns per-category record counts, omitting empty
// categories.
func (b Batch) Counts() map[string]int {
	counts := make(map[string]int, 4)
	if n := len(b.Session); n > 0 {
		counts[CategorySession] = n
	}
	if n := len(b.Observations); n > 0 {
		counts[CategoryObservations] = n
	}
	if n := len(b.Usage); n > 0 {
		counts[CategoryUsage] = n
	}
	if n := len(b.Audit); n > 0 {
		counts[CategoryAudit] = n
	}
	return counts
}

// Filter returns a copy of the batch with excluded categories
// dropped. Filtering happens at push and drain time, never at
// enqueue, so a configuration change applies to already-queued
// payloads too.
func (b Batch) Filter(include config.Categories) Batch {
	out := b
	if !include.Session {
		out.Session = nil
	}
	if !include.Observations {
		out.Observations = nil
	}
	if !include.Usage {
		out.Usage = nil
	}
	if !include.Audit {
		out.Audit = nil
	}
	return out
}
