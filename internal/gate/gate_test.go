package gate

import (
	"strings"
	"testing"

	"github.com/ppiankov/toolgate/internal/tier"
)

func testPolicy() *tier.Policy {
	return tier.NewPolicy("toolgate_", map[string]tier.Tier{
		"status":       tier.Community,
		"usage_report": tier.Pro,
		"audit_export": tier.Enterprise,
	})
}

func TestAnnotate(t *testing.T) {
	pol := testPolicy()
	in := []Capability{
		{Name: "toolgate_status", Description: "Show gate status"},
		{Name: "toolgate_usage_report", Description: "Render usage report"},
		{Name: "toolgate_audit_export", Description: "Export audit entries"},
		{Name: "toolgate_something_new", Description: "Unregistered tool"},
	}

	out := Annotate(in, pol)

	tests := []struct {
		i          int
		wantTier   tier.Tier
		wantPrefix string
	}{
		{0, tier.Community, "Show"},
		{1, tier.Pro, "[pro] "},
		{2, tier.Enterprise, "[enterprise] "},
		{3, tier.Community, "Unregistered"},
	}
	for _, tt := range tests {
		if out[tt.i].RequiredTier != tt.wantTier {
			t.Errorf("cap %d: RequiredTier = %v, want %v", tt.i, out[tt.i].RequiredTier, tt.wantTier)
		}
		if !strings.HasPrefix(out[tt.i].Description, tt.wantPrefix) {
			t.Errorf("cap %d: Description = %q, want prefix %q", tt.i, out[tt.i].Description, tt.wantPrefix)
		}
	}

	// Input untouched.
	if in[1].Description != "Render usage report" {
		t.Error("Annotate mutated its input")
	}
}

func TestCheck(t *testing.T) {
	pol := testPolicy()

	tests := []struct {
		name    string
		caller  tier.Tier
		allowed bool
		reqTier tier.Tier
	}{
		{"toolgate_status", tier.Community, true, tier.Community},
		{"toolgate_usage_report", tier.Community, false, tier.Pro},
		{"toolgate_usage_report", tier.Pro, true, tier.Pro},
		{"toolgate_usage_report", tier.Enterprise, true, tier.Pro},
		{"toolgate_audit_export", tier.Pro, false, tier.Enterprise},
		{"toolgate_audit_export", tier.Enterprise, true, tier.Enterprise},
		{"toolgate_unknown", tier.Community, true, tier.Community},
	}

	for _, tt := range tests {
		d := Check(pol, tt.name, tt.caller)
		if d.Allowed != tt.allowed {
			t.Errorf("Check(%q, %v).Allowed = %v, want %v", tt.name, tt.caller, d.Allowed, tt.allowed)
		}
		if d.RequiredTier != tt.reqTier {
			t.Errorf("Check(%q, %v).RequiredTier = %v, want %v", tt.name, tt.caller, d.RequiredTier, tt.reqTier)
		}
	}
}

func TestDenyMessageNamesTier(t *testing.T) {
	d := Check(testPolicy(), "toolgate_audit_export", tier.Pro)
	msg := DenyMessage("toolgate_audit_export", d)
	if !strings.Contains(msg, "enterprise") {
		t.Errorf("DenyMessage = %q, want the required tier named", msg)
	}
}
