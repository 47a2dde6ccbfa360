package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/toolgate/internal/retry"
	"github.com/ppiankov/toolgate/internal/tier"
)

// verdict classifies the outcome of a remote validation.
type verdict int

const (
	// verdictOK: the service confirmed the credential and returned an
	// entitlement.
	verdictOK verdict = iota
	// verdictInvalid: the service definitively rejected the
	// credential. Not a transport problem, so no fallback applies.
	verdictInvalid
	// verdictUnreachable: timeout, transport error, or a non-success
	// response that is not a definitive rejection. The caller falls
	// through its cache chain.
	verdictUnreachable
)

type validateRequest struct {
	LicenseKey string `json:"license_key"`
}

type validateResponse struct {
	Valid     bool       `json:"valid"`
	Plan      string     `json:"plan,omitempty"`
	Tier      string     `json:"tier,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Features  []string   `json:"features,omitempty"`
}

// remoteClient calls the license validation endpoint with a bounded
// timeout. It shares the retry.Policy mechanism with the telemetry
// push; validation performs a single attempt because the validator's
// cache chain is its fallback, not a retry loop.
type remoteClient struct {
	endpoint string
	httpc    *http.Client
	policy   retry.Policy
}

func newRemoteClient(endpoint string) *remoteClient {
	return &remoteClient{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: remoteTimeout},
		policy:   retry.Single(),
	}
}

// Validate checks the license key against the remote service. Never
// returns a Go error: every failure mode maps to a verdict the
// state machine handles.
func (c *remoteClient) Validate(ctx context.Context, key string) (Entitlement, verdict) {
	var (
		ent Entitlement
		v   = verdictUnreachable
	)

	_ = c.policy.Do(ctx, func(ctx context.Context) error {
		e, res, err := c.validateOnce(ctx, key)
		if err != nil {
			return err
		}
		ent, v = e, res
		return nil
	})

	return ent, v
}

func (c *remoteClient) validateOnce(ctx context.Context, key string) (Entitlement, verdict, error) {
	body, err := json.Marshal(validateRequest{LicenseKey: key})
	if err != nil {
		return Entitlement{}, verdictUnreachable, err
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Entitlement{}, verdictUnreachable, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Entitlement{}, verdictUnreachable, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The service recognized the request and rejected the
		// credential. Fail closed.
		return Entitlement{}, verdictInvalid, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Entitlement{}, verdictUnreachable, fmt.Errorf("license service: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Entitlement{}, verdictUnreachable, err
	}

	var vr validateResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return Entitlement{}, verdictUnreachable, fmt.Errorf("license service: malformed response: %w", err)
	}

	if !vr.Valid {
		return Entitlement{}, verdictInvalid, nil
	}

	t := tier.PlanTier(vr.Plan)
	if vr.Tier != "" {
		t = tier.Parse(vr.Tier)
	}

	return Entitlement{
		Tier:       t,
		ValidUntil: vr.ExpiresAt,
		Features:   vr.Features,
	}, verdictOK, nil
}
