package mcptools

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rcliao/memory-server/internal/service"
)

// SSE endpoints mounted on the HTTP server.
const (
	SSEEndpoint     = "/sse"
	MessageEndpoint = "/message"
)

// Tools returns every tool, in registration order.
func Tools(d *Deps) []Tool {
	return []Tool{
		NewSaveTool(d),
		NewGetAllTool(d),
		NewSearchTool(d),
		NewUpdateTool(d),
		NewDeleteTool(d),
	}
}

// NewServer creates the MCP server named name with every tool registered.
func NewServer(name string, d *Deps) *server.MCPServer {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	s := server.NewMCPServer(
		name,
		service.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	for _, t := range Tools(d) {
		s.AddTool(t.Definition(), t.Handle)
	}
	d.Logger.Info("MCP server initialized", "name", name, "tools", len(service.Tools))
	return s
}

// NewSSE wraps s in an SSE transport whose endpoints are advertised under
// baseURL.
func NewSSE(s *server.MCPServer, baseURL string) *server.SSEServer {
	return server.NewSSEServer(s,
		server.WithBaseURL(baseURL),
		server.WithSSEEndpoint(SSEEndpoint),
		server.WithMessageEndpoint(MessageEndpoint),
	)
}

// ServeStdio runs s over stdin and stdout until ctx is done or the input
// closes. Protocol errors are logged to stderr through logger.
func ServeStdio(ctx context.Context, s *server.MCPServer, logger *log.Logger) error {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{})
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
