package mcp

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/license"
	"github.com/ppiankov/toolgate/internal/store"
	"github.com/ppiankov/toolgate/internal/telemetry"
)

// newTestServer builds a server with no license key configured, so
// the resolved tier is always community and sync is unconfigured.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.LicenseKey = ""

	validator := license.NewValidator(cfg, st)
	client := telemetry.NewClient(cfg, st, slog.New(slog.DiscardHandler))
	return New(cfg, st, validator, client)
}

func TestStatusReportsCommunityDefault(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleStatus(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{})
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success result")
	}
	if out.Tier != "community" {
		t.Errorf("Tier = %q, want community", out.Tier)
	}
	if out.Source != "default" {
		t.Errorf("Source = %q, want default", out.Source)
	}
	if out.PendingSync != 0 {
		t.Errorf("PendingSync = %d, want 0", out.PendingSync)
	}
}

func TestGatedDeniesAboveCallerTier(t *testing.T) {
	s := newTestServer(t)

	ran := false
	h := gated(s, "toolgate_audit_export", func(ctx context.Context, req *mcpsdk.CallToolRequest, in StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
		ran = true
		return nil, StatusOutput{}, nil
	})

	result, _, err := h(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if ran {
		t.Fatal("tool logic ran despite denial")
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for denied invocation")
	}

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	if !ok || !strings.Contains(text.Text, "enterprise") {
		t.Errorf("deny content = %+v, want upgrade message naming the tier", result.Content)
	}
}

func TestGatedAllowsAtOrBelowCallerTier(t *testing.T) {
	s := newTestServer(t)

	ran := false
	h := gated(s, "toolgate_status", func(ctx context.Context, req *mcpsdk.CallToolRequest, in StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
		ran = true
		return nil, StatusOutput{Tier: "community"}, nil
	})

	result, out, err := h(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !ran {
		t.Fatal("tool logic did not run for an allowed invocation")
	}
	if result != nil && result.IsError {
		t.Fatal("unexpected error result")
	}
	if out.Tier != "community" {
		t.Errorf("out = %+v", out)
	}
}

func TestGatedInvocationsAreRecorded(t *testing.T) {
	s := newTestServer(t)

	deny := gated(s, "toolgate_audit_export", func(ctx context.Context, req *mcpsdk.CallToolRequest, in StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
		return nil, StatusOutput{}, nil
	})
	allow := gated(s, "toolgate_status", func(ctx context.Context, req *mcpsdk.CallToolRequest, in StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
		return nil, StatusOutput{}, nil
	})

	deny(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{})
	allow(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{})

	// One usage record per invocation plus one audit record for the
	// denial.
	if got := s.recorder.Pending(); got != 3 {
		t.Errorf("pending records = %d, want 3", got)
	}

	// Sync is unconfigured: flush reports silent success and empties
	// the recorder.
	res := s.FlushRecords(context.Background())
	if !res.Delivered {
		t.Errorf("FlushRecords: %+v", res)
	}
	if got := s.recorder.Pending(); got != 0 {
		t.Errorf("pending records after flush = %d, want 0", got)
	}
}
