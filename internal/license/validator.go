package license

import (
	"context"
	"sync"
	"time"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/store"
)

// Validator resolves the caller's entitlement. A single resolution
// walks the fallback chain in order and short-circuits on the first
// usable verdict: in-process slot → durable fresh → remote → durable
// grace → community. It never returns an error; gating always gets a
// tier.
type Validator struct {
	cfg    config.Config
	store  *store.Store
	remote *remoteClient

	now func() time.Time

	mu       sync.Mutex
	slot     *Entitlement
	cachedAt time.Time

	// validateMu serializes the remote-validate-and-persist step so
	// concurrent resolutions for the credential collapse into one
	// network call. The store's guarded upsert enforces last-write-
	// wins across processes regardless.
	validateMu sync.Mutex
}

// NewValidator creates a Validator over the given config and durable
// store.
func NewValidator(cfg config.Config, st *store.Store) *Validator {
	return &Validator{
		cfg:    cfg,
		store:  st,
		remote: newRemoteClient(cfg.LicenseEndpoint),
		now:    time.Now,
	}
}

// Resolve returns the current entitlement and the state that produced
// it.
func (v *Validator) Resolve(ctx context.Context) (Entitlement, Source) {
	now := v.now().UTC()

	if e, ok := v.fromSlot(now); ok {
		return e, SourceMemory
	}

	// No credential configured: community, no network.
	if v.cfg.LicenseKey == "" {
		return v.cache(communityEntitlement(), now), SourceDefault
	}

	hash := HashKey(v.cfg.LicenseKey)

	// Durable fresh window: trust the cache without revalidating.
	row, err := v.store.GetEntitlement(ctx, hash)
	if err != nil {
		row = nil // storage trouble degrades to the remote path
	}
	if row != nil && now.Sub(row.LastValidated) < freshWindow {
		return v.cache(fromRow(row), now), SourceCache
	}

	v.validateMu.Lock()
	defer v.validateMu.Unlock()

	// Another resolution may have finished while this one waited.
	if e, ok := v.fromSlot(v.now().UTC()); ok {
		return e, SourceMemory
	}

	ent, res := v.remote.Validate(ctx, v.cfg.LicenseKey)
	switch res {
	case verdictOK:
		ent.LastValidated = now
		// Best effort: a failed cache write costs a revalidation
		// later, not the verdict.
		_ = v.store.PutEntitlement(ctx, store.Entitlement{
			CredentialHash: hash,
			Tier:           ent.Tier,
			ValidUntil:     ent.ValidUntil,
			Features:       ent.Features,
			LastValidated:  ent.LastValidated,
		})
		return v.cache(ent, now), SourceRemote

	case verdictInvalid:
		// Fail closed on revocation: no grace for a credential the
		// service explicitly rejected. Persisted so a restart with
		// the remote down cannot resurrect the old tier.
		ent = communityEntitlement()
		ent.LastValidated = now
		_ = v.store.PutEntitlement(ctx, store.Entitlement{
			CredentialHash: hash,
			Tier:           ent.Tier,
			LastValidated:  ent.LastValidated,
		})
		return v.cache(ent, now), SourceRemote
	}

	// Remote unreachable: honor a stale verdict inside the grace
	// window rather than downgrading a licensed install on every
	// network blip.
	if row != nil && now.Sub(row.LastValidated) < graceWindow {
		return v.cache(fromRow(row), now), SourceGrace
	}

	return v.cache(communityEntitlement(), now), SourceDefault
}

// Invalidate clears the in-process slot so the next resolution walks
// the full chain again.
func (v *Validator) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slot = nil
}

func (v *Validator) fromSlot(now time.Time) (Entitlement, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.slot != nil && now.Sub(v.cachedAt) < memoryTTL {
		return *v.slot, true
	}
	return Entitlement{}, false
}

// cache stores the verdict in the in-process slot. Every resolution
// path funnels through here before returning.
func (v *Validator) cache(e Entitlement, now time.Time) Entitlement {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slot = &e
	v.cachedAt = now
	return e
}

func fromRow(row *store.Entitlement) Entitlement {
	return Entitlement{
		Tier:          row.Tier,
		ValidUntil:    row.ValidUntil,
		Features:      row.Features,
		LastValidated: row.LastValidated,
	}
}
