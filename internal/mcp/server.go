// Package mcp runs the stdio MCP server. Every registered tool is
// wrapped by the gate: the caller's tier is resolved and checked
// before any tool logic executes, and each decision is recorded for
// telemetry.
package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/gate"
	"github.com/ppiankov/toolgate/internal/license"
	"github.com/ppiankov/toolgate/internal/store"
	"github.com/ppiankov/toolgate/internal/telemetry"
	"github.com/ppiankov/toolgate/internal/tier"
)

// Server wraps the MCP SDK server with tier enforcement.
type Server struct {
	mcpServer *mcpsdk.Server
	cfg       config.Config
	policy    *tier.Policy
	validator *license.Validator
	store     *store.Store
	recorder  *telemetry.Recorder
	sync      *telemetry.Client
}

// New creates an MCP server over the given components and registers
// the built-in tools.
func New(cfg config.Config, st *store.Store, validator *license.Validator, syncClient *telemetry.Client) *Server {
	s := &Server{
		cfg:       cfg,
		policy:    cfg.TierPolicy(),
		validator: validator,
		store:     st,
		recorder:  telemetry.NewRecorder(),
		sync:      syncClient,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "toolgate",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// FlushRecords pushes accumulated usage/audit records. Called by the
// serve loop on a timer and at shutdown.
func (s *Server) FlushRecords(ctx context.Context) telemetry.Result {
	return s.recorder.Flush(ctx, s.sync)
}

// AddTool registers a tool behind the gate. The tool description is
// annotated with its tier label, and the handler only runs when the
// caller's resolved tier satisfies the requirement. This is the
// single choke point: new tools get enforcement by registering here,
// not by checking themselves.
func AddTool[In, Out any](s *Server, t *mcpsdk.Tool, h mcpsdk.ToolHandlerFor[In, Out]) {
	annotated := gate.Annotate([]gate.Capability{{Name: t.Name, Description: t.Description}}, s.policy)[0]

	labeled := *t
	labeled.Description = annotated.Description

	mcpsdk.AddTool(s.mcpServer, &labeled, gated(s, t.Name, h))
}

// gated wraps a tool handler with the tier check.
func gated[In, Out any](s *Server, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		var zero Out

		ent, _ := s.validator.Resolve(ctx)
		d := gate.Check(s.policy, name, ent.Tier)
		s.record(name, ent.Tier, d)

		if !d.Allowed {
			res := &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{
					&mcpsdk.TextContent{Text: gate.DenyMessage(name, d)},
				},
			}
			return res, zero, nil
		}

		return h(ctx, req, in)
	}
}

func (s *Server) record(name string, caller tier.Tier, d gate.Decision) {
	now := time.Now().UTC()
	s.recorder.RecordUsage(name, caller.String(), d.Allowed, now)
	if !d.Allowed {
		s.recorder.RecordAudit(name, "deny", gate.DenyMessage(name, d), now)
	}
}

// registerTools adds the built-in tools.
func (s *Server) registerTools() {
	AddTool(s, &mcpsdk.Tool{
		Name:        "toolgate_status",
		Description: "Report the current entitlement tier, its source, and the pending telemetry queue depth.",
	}, s.handleStatus)
}
