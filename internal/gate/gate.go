// Package gate is the single enforcement point between a resolved
// tier and capability execution. Every tool invocation passes through
// Check before any tool logic runs; nothing else in the repository
// makes allow/deny decisions.
package gate

import (
	"fmt"

	"github.com/ppiankov/toolgate/internal/tier"
)

// Capability is one entry of a capability listing.
type Capability struct {
	Name         string
	Description  string
	RequiredTier tier.Tier
}

// Decision is the outcome of an invocation check. RequiredTier is
// filled on deny so the caller can render an upgrade message.
type Decision struct {
	Allowed      bool
	RequiredTier tier.Tier
}

// Annotate computes each capability's required tier and prepends a
// visible tier label to its description. Community capabilities carry
// no label. Pure and deterministic; the input slice is not modified.
func Annotate(caps []Capability, pol *tier.Policy) []Capability {
	out := make([]Capability, len(caps))
	for i, c := range caps {
		c.RequiredTier = pol.RequiredTier(c.Name)
		if c.RequiredTier.Rank() > tier.Community.Rank() {
			c.Description = fmt.Sprintf("[%s] %s", c.RequiredTier, c.Description)
		}
		out[i] = c
	}
	return out
}

// Check decides whether the named capability may run at the caller's
// tier.
func Check(pol *tier.Policy, name string, caller tier.Tier) Decision {
	required := pol.RequiredTier(name)
	return Decision{
		Allowed:      caller.Rank() >= required.Rank(),
		RequiredTier: required,
	}
}

// DenyMessage renders the upgrade message for a denied invocation.
func DenyMessage(name string, d Decision) string {
	return fmt.Sprintf("%s requires the %s tier; upgrade your license to use it", name, d.RequiredTier)
}
