package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatusInput is empty: the tool takes no parameters.
type StatusInput struct{}

// StatusOutput reports the resolved entitlement and queue state.
type StatusOutput struct {
	Tier        string   `json:"tier"`
	Source      string   `json:"source"`
	Features    []string `json:"features,omitempty"`
	ValidUntil  string   `json:"valid_until,omitempty"`
	PendingSync int      `json:"pending_sync"`
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	ent, src := s.validator.Resolve(ctx)

	out := StatusOutput{
		Tier:     ent.Tier.String(),
		Source:   string(src),
		Features: ent.Features,
	}
	if ent.ValidUntil != nil {
		out.ValidUntil = ent.ValidUntil.Format(time.RFC3339)
	}

	if n, err := s.store.PendingCount(ctx); err == nil {
		out.PendingSync = n
	}

	return nil, out, nil
}
