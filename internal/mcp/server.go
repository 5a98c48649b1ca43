package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/paper2code/internal/session"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes the paper-to-code pipeline and
// the knowledge base as tools.
type Server struct {
	manager   *session.Manager
	store     vectordb.VectorStore
	extractor session.TextExtractor
	mcp       *server.MCPServer
}

// NewServer creates a new MCP server. store may be nil when no knowledge
// base is configured; search_knowledge then reports that it is unavailable.
func NewServer(m *session.Manager, store vectordb.VectorStore, extractor session.TextExtractor) *Server {
	s := &Server{
		manager:   m,
		store:     store,
		extractor: extractor,
	}

	s.mcp = server.NewMCPServer(
		"paper2code",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(analyzePaperTool, s.handleAnalyzePaper)
	s.mcp.AddTool(generateCodeTool, s.handleGenerateCode)
	s.mcp.AddTool(evaluateCodeTool, s.handleEvaluateCode)
	s.mcp.AddTool(refineCodeTool, s.handleRefineCode)
	s.mcp.AddTool(getSessionTool, s.handleGetSession)
	s.mcp.AddTool(getReportTool, s.handleGetReport)
	s.mcp.AddTool(searchKnowledgeTool, s.handleSearchKnowledge)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
