package tier

import "strings"

// Tier is a totally ordered entitlement level. Higher tier = more
// capabilities unlocked.
type Tier int

const (
	Community  Tier = 0 // default, no license required
	Pro        Tier = 1
	Enterprise Tier = 2
)

// String returns the canonical lowercase label for the tier.
func (t Tier) String() string {
	switch t {
	case Pro:
		return "pro"
	case Enterprise:
		return "enterprise"
	default:
		return "community"
	}
}

// Rank exposes the total order over tiers.
func (t Tier) Rank() int {
	return int(t)
}

// Parse maps a string to a Tier. Fail-open to least privilege:
// unknown or empty strings parse as Community, never an error.
func Parse(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pro":
		return Pro
	case "enterprise":
		return Enterprise
	default:
		return Community
	}
}

// PlanTier translates a remote plan identifier into a Tier.
// Unknown plans map to Community.
func PlanTier(plan string) Tier {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "pro", "team":
		return Pro
	case "business", "enterprise":
		return Enterprise
	default:
		return Community
	}
}

// Policy maps capability names to the tier required to invoke them.
// Lookups strip a configurable namespace prefix first, so
// "toolgate_usage_report" and "usage_report" resolve identically.
// Read-only after construction; safe for concurrent use.
type Policy struct {
	prefix   string
	required map[string]Tier
}

// NewPolicy builds a Policy from a prefix and a name→tier map.
// The map is copied; later mutation by the caller has no effect.
func NewPolicy(prefix string, required map[string]Tier) *Policy {
	m := make(map[string]Tier, len(required))
	for k, v := range required {
		m[k] = v
	}
	return &Policy{prefix: prefix, required: m}
}

// DefaultPrefix is the namespace prefix tools carry when registered
// on the MCP server.
const DefaultPrefix = "toolgate_"

// DefaultRequirements returns a fresh copy of the built-in
// capability→tier mapping.
func DefaultRequirements() map[string]Tier {
	return map[string]Tier{
		"status":          Community,
		"session_export":  Pro,
		"usage_report":    Pro,
		"observe":         Pro,
		"audit_export":    Enterprise,
		"policy_override": Enterprise,
	}
}

// DefaultPolicy returns a Policy over the built-in mapping.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultPrefix, DefaultRequirements())
}

// Normalize strips the namespace prefix from a capability name.
func (p *Policy) Normalize(name string) string {
	if p.prefix != "" {
		return strings.TrimPrefix(name, p.prefix)
	}
	return name
}

// RequiredTier returns the tier required for a capability. Total:
// unrecognized names require Community (fail open to least privilege).
func (p *Policy) RequiredTier(name string) Tier {
	if t, ok := p.required[p.Normalize(name)]; ok {
		return t
	}
	return Community
}

// IsAllowed reports whether a caller at the given tier may invoke the
// named capability.
func (p *Policy) IsAllowed(name string, caller Tier) bool {
	return caller.Rank() >= p.RequiredTier(name).Rank()
}
