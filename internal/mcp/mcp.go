// Package mcp serves the assistant's tools over the Model Context Protocol,
// so external MCP clients reach the same tool layer as the chat loop.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/michi/internal/tools"
)

// StatsURI is the resource holding index statistics.
const StatsURI = "michi://index/stats"

// StatsFunc reports index statistics as a JSON-encodable value.
type StatsFunc func(ctx context.Context) (any, error)

// Server wraps the mcp-go server.
type Server struct {
	mcpServer *mcpserver.MCPServer
	toolset   *tools.Toolset
	stats     StatsFunc
	logger    *slog.Logger
}

// New creates a server exposing every tool in tools.Declarations. stats may
// be nil, in which case no resource is registered.
func New(toolset *tools.Toolset, stats StatsFunc, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{toolset: toolset, stats: stats, logger: logger}

	opts := []mcpserver.ServerOption{mcpserver.WithToolCapabilities(false)}
	if stats != nil {
		opts = append(opts, mcpserver.WithResourceCapabilities(false, false))
	}
	s.mcpServer = mcpserver.NewMCPServer("michi", version, opts...)

	for _, decl := range tools.Declarations() {
		s.mcpServer.AddTool(decl, s.handleTool(tools.ParseKind(decl.Name)))
	}
	if stats != nil {
		s.mcpServer.AddResource(
			mcplib.NewResource(StatsURI, "Index Stats",
				mcplib.WithResourceDescription("Document count, collection and last sync of the course index"),
				mcplib.WithMIMEType("application/json"),
			),
			s.handleStats,
		)
	}
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

func (s *Server) handleTool(kind tools.Kind) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		out, err := s.toolset.Call(ctx, kind, request.GetArguments())
		if err != nil {
			s.logger.Warn("mcp: tool call rejected", "tool", kind.String(), "error", err)
			return errorResult("工具执行失败: " + err.Error()), nil
		}
		return mcplib.NewToolResultText(tools.Render(out)), nil
	}
}

func (s *Server) handleStats(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	v, err := s.stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: stats: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal stats: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
