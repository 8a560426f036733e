// Package mcp exposes a Gateway to agents as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/accessgate/internal/gateway"
)

// Server wraps the MCP SDK server around a Gateway.
type Server struct {
	mcpServer *mcpsdk.Server
	gw        *gateway.Gateway
	logger    *zap.Logger
}

// New creates an MCP server with all accessgate tools registered. The
// gateway stays owned by the caller.
func New(gw *gateway.Gateway, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{gw: gw, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "accessgate",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server on stdio", zap.String("bundle", s.gw.BundlePath()))
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "accessgate_evaluate",
		Description: "Decide whether a user may perform an action on a resource. Every decision is recorded in the audit chain. Allowed results list the fields that must be redacted.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "accessgate_verify_audit",
		Description: "Verify the tamper-evident audit chain. Reports the first broken entry if any.",
	}, s.handleVerifyAudit)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "accessgate_audit_log",
		Description: "List the most recent audit entries, oldest first, filtered by tenant, user, action or decision.",
	}, s.handleAuditLog)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "accessgate_cross_domain",
		Description: "Check whether one tenant may access data owned by another tenant.",
	}, s.handleCrossDomain)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "accessgate_redact",
		Description: "Return a JSON payload with the fields hidden from a given clearance level removed.",
	}, s.handleRedact)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "accessgate_metrics",
		Description: "Report decision counters, 24h windows, active policies and encrypted tenants.",
	}, s.handleMetrics)
}
