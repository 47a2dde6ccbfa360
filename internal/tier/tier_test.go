package tier

import "testing"

func TestParseUnknownIsCommunity(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"community", Community},
		{"pro", Pro},
		{"PRO", Pro},
		{"enterprise", Enterprise},
		{" enterprise ", Enterprise},
		{"", Community},
		{"platinum", Community},
		{"free", Community},
	}

	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPlanTier(t *testing.T) {
	tests := []struct {
		plan string
		want Tier
	}{
		{"pro", Pro},
		{"team", Pro},
		{"business", Enterprise},
		{"enterprise", Enterprise},
		{"free", Community},
		{"trial-2024", Community},
		{"", Community},
	}

	for _, tt := range tests {
		if got := PlanTier(tt.plan); got != tt.want {
			t.Errorf("PlanTier(%q) = %v, want %v", tt.plan, got, tt.want)
		}
	}
}

func TestRequiredTierDefaultsToCommunity(t *testing.T) {
	p := DefaultPolicy()

	for _, name := range []string{"unknown_tool", "exec", "", "toolgate_never_registered"} {
		if got := p.RequiredTier(name); got != Community {
			t.Errorf("RequiredTier(%q) = %v, want Community", name, got)
		}
	}
}

func TestRequiredTierStripsPrefix(t *testing.T) {
	p := DefaultPolicy()

	if got := p.RequiredTier("toolgate_usage_report"); got != Pro {
		t.Errorf("RequiredTier(toolgate_usage_report) = %v, want Pro", got)
	}
	if got := p.RequiredTier("usage_report"); got != Pro {
		t.Errorf("RequiredTier(usage_report) = %v, want Pro", got)
	}
	if got := p.RequiredTier("toolgate_audit_export"); got != Enterprise {
		t.Errorf("RequiredTier(toolgate_audit_export) = %v, want Enterprise", got)
	}
}

func TestIsAllowedMonotonicInCallerTier(t *testing.T) {
	p := NewPolicy("", map[string]Tier{
		"free_thing":       Community,
		"pro_thing":        Pro,
		"enterprise_thing": Enterprise,
	})

	tiers := []Tier{Community, Pro, Enterprise}
	for _, caller := range tiers {
		for name, required := range map[string]Tier{
			"free_thing":       Community,
			"pro_thing":        Pro,
			"enterprise_thing": Enterprise,
		} {
			want := caller.Rank() >= required.Rank()
			if got := p.IsAllowed(name, caller); got != want {
				t.Errorf("IsAllowed(%q, %v) = %v, want %v", name, caller, got, want)
			}
		}
	}

	// Reflexive: a tier always satisfies its own requirement.
	for _, tt := range tiers {
		name := map[Tier]string{Community: "free_thing", Pro: "pro_thing", Enterprise: "enterprise_thing"}[tt]
		if !p.IsAllowed(name, tt) {
			t.Errorf("IsAllowed(%q, %v) = false, want true (reflexive)", name, tt)
		}
	}
}

func TestNewPolicyCopiesMap(t *testing.T) {
	m := map[string]Tier{"thing": Pro}
	p := NewPolicy("", m)
	m["thing"] = Enterprise

	if got := p.RequiredTier("thing"); got != Pro {
		t.Errorf("RequiredTier(thing) = %v after caller mutation, want Pro", got)
	}
}
