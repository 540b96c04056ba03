// Package mcptool exposes the governance gateway over the Model Context
// Protocol. An agent runtime connects on stdio and routes every mutating
// tool call through perchgate_evaluate / perchgate_complete, so the gateway
// adjudicates each side effect before the agent performs it.
package mcptool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentperch/perchgate/internal/domain/policy"
	"github.com/agentperch/perchgate/internal/service"
)

// Server wraps the MCP SDK server around the governance gateway.
type Server struct {
	mcpServer *mcpsdk.Server
	gateway   *service.Gateway
	cfg       *policy.Config
	mode      policy.Mode
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingTicket
}

// pendingTicket is an open Proceed decision awaiting perchgate_complete.
type pendingTicket struct {
	ticket *service.Ticket
	issued time.Time
}

// Config holds the server's identity and policy snapshot.
type Config struct {
	Version string
	Policy  *policy.Config
	Mode    policy.Mode
}

// New creates the MCP server and registers the governance tools.
func New(cfg Config, gateway *service.Gateway, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		gateway: gateway,
		cfg:     cfg.Policy,
		mode:    cfg.Mode,
		logger:  logger.With("component", "mcptool"),
		pending: make(map[string]*pendingTicket),
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "perchgate",
			Version: cfg.Version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run serves the MCP protocol on stdio. Blocks until ctx is cancelled or the
// transport closes.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// PendingCount reports tickets issued but not yet completed.
func (s *Server) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Server) trackTicket(t *service.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[t.CorrelationID] = &pendingTicket{ticket: t, issued: time.Now()}
}

func (s *Server) takeTicket(correlationID string) (*service.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.pending[correlationID]
	if !ok {
		return nil, false
	}
	delete(s.pending, correlationID)
	return pt.ticket, true
}

// registerTools adds the governance tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perchgate_evaluate",
		Description: "Submit a proposed mutation for governance evaluation. Returns proceed with a correlation_id, or denied/routed_to_approval/dry_run/duplicate with details. On proceed, perform the mutation and then call perchgate_complete.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perchgate_complete",
		Description: "Report the outcome of a mutation previously admitted by perchgate_evaluate. Required exactly once per proceed decision.",
	}, s.handleComplete)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perchgate_pending",
		Description: "List admitted mutations that have not been completed yet.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perchgate_policy",
		Description: "Describe the active policy: template, effective rules, and rate limits.",
	}, s.handlePolicy)
}
