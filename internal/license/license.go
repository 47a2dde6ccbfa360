// Package license resolves the caller's entitlement tier. The remote
// license service is authoritative; verdicts are cached across three
// horizons (in-process, durable fresh, durable grace) so tool gating
// never blocks on network availability.
package license

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/toolgate/internal/tier"
)

// Resolution horizons. A verdict younger than memoryTTL is served
// from the in-process slot; younger than freshWindow from the durable
// cache without a network call; younger than graceWindow only when
// the remote is unreachable. Past the grace window a stale verdict is
// worthless: a revoked credential must not keep its tier forever.
const (
	memoryTTL     = 15 * time.Minute
	freshWindow   = time.Hour
	graceWindow   = 7 * 24 * time.Hour
	remoteTimeout = 10 * time.Second
)

// Entitlement is a resolved verdict: the tier the caller may operate
// at, plus whatever the license service attached to it.
type Entitlement struct {
	Tier          tier.Tier
	ValidUntil    *time.Time
	Features      []string
	LastValidated time.Time
}

// Source identifies which fallback state produced a verdict. Gating
// ignores it; the status command surfaces it.
type Source string

const (
	SourceMemory  Source = "memory"
	SourceCache   Source = "cache"
	SourceRemote  Source = "remote"
	SourceGrace   Source = "grace"
	SourceDefault Source = "default"
)

// HashKey derives the stable cache key for a license key. Only this
// hash is ever persisted.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// communityEntitlement is the floor every resolution path can fall
// back to: lowest tier, no expiry, no features.
func communityEntitlement() Entitlement {
	return Entitlement{Tier: tier.Community}
}
