package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/toolgate/internal/tier"
)

// Entitlement is one row of the durable entitlement cache, keyed by
// the credential hash. The raw license key is never stored.
type Entitlement struct {
	CredentialHash string
	Tier           tier.Tier
	ValidUntil     *time.Time // nil = non-expiring
	Features       []string
	LastValidated  time.Time
}

// GetEntitlement returns the cached entitlement for a credential
// hash, or nil if none exists.
func (s *Store) GetEntitlement(ctx context.Context, hash string) (*Entitlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tier, valid_until, features, last_validated
		 FROM entitlements WHERE credential_hash = ?`, hash)

	var (
		tierStr    string
		validUntil sql.NullInt64
		featJSON   string
		validated  int64
	)
	if err := row.Scan(&tierStr, &validUntil, &featJSON, &validated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read entitlement: %w", err)
	}

	e := &Entitlement{
		CredentialHash: hash,
		Tier:           tier.Parse(tierStr),
		LastValidated:  time.Unix(validated, 0).UTC(),
	}
	if validUntil.Valid {
		t := time.Unix(validUntil.Int64, 0).UTC()
		e.ValidUntil = &t
	}
	if err := json.Unmarshal([]byte(featJSON), &e.Features); err != nil {
		// A corrupt features column degrades to "no features" rather
		// than failing the gating path.
		e.Features = nil
	}
	return e, nil
}

// PutEntitlement upserts the row for e.CredentialHash. The update is
// guarded on last_validated so an older verdict never overwrites a
// newer one, no matter how writers interleave.
func (s *Store) PutEntitlement(ctx context.Context, e Entitlement) error {
	featJSON, err := json.Marshal(e.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	if e.Features == nil {
		featJSON = []byte("[]")
	}

	var validUntil any
	if e.ValidUntil != nil {
		validUntil = e.ValidUntil.Unix()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entitlements (credential_hash, tier, valid_until, features, last_validated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(credential_hash) DO UPDATE SET
			tier = excluded.tier,
			valid_until = excluded.valid_until,
			features = excluded.features,
			last_validated = excluded.last_validated
		 WHERE excluded.last_validated >= entitlements.last_validated`,
		e.CredentialHash, e.Tier.String(), validUntil, string(featJSON), e.LastValidated.Unix())
	if err != nil {
		return fmt.Errorf("write entitlement: %w", err)
	}
	return nil
}
