// Package mcp exposes an Agent as a Model Context Protocol server, so other
// agents can request compliance analyses as a tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/internal/sanitize"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI is the resource holding the stage graph diagram.
const GraphURI = "arbiter://graph"

// AnalyzeResponse is the structured output of analyze_query.
type AnalyzeResponse struct {
	ThreadID string              `json:"thread_id" jsonschema_description:"Thread to pass back for follow-up turns"`
	Turn     int                 `json:"turn" jsonschema_description:"Zero-based turn number on the thread"`
	Result   *domain.FinalResult `json:"result" jsonschema_description:"Terminal result; 'type' is answer, chat, clarification, review_required, blocked or error"`
}

// Agent is the subset of arbiter.Agent exposed over MCP.
type Agent interface {
	Run(ctx context.Context, req arbiter.Request, sinks ...ports.EventSink) (*arbiter.Response, error)
	Threads(ctx context.Context) ([]string, error)
	History(ctx context.Context, threadID string) (*domain.State, error)
}

var _ Agent = (*arbiter.Agent)(nil)

// Server wraps the Agent and exposes it as an MCP Server.
type Server struct {
	agent     Agent
	diagram   string
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithGraphDiagram publishes a rendering of the stage graph as a resource.
func WithGraphDiagram(diagram string) Option {
	return func(s *Server) {
		s.diagram = diagram
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(agent Agent, opts ...Option) *Server {
	s := &Server{
		agent:     agent,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("arbiter-mcp", strings.TrimSpace(arbiter.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves on the given port using SSE until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: analyze_query
	analyzeTool := mcp.NewTool("analyze_query",
		mcp.WithDescription("Analyze a regulatory compliance question (GDPR, CCPA, FDA) and return a validated, governed answer."),
		mcp.WithString("query", mcp.Description("The compliance question. May be empty when answering a clarification with user_selections.")),
		mcp.WithString("domain", mcp.Description("Regulatory regime: GDPR (default), CCPA or FDA")),
		mcp.WithString("thread_id", mcp.Description("Existing thread to continue (optional)")),
		mcp.WithString("user_selections", mcp.Description("JSON array of clarification answers (optional)")),
		mcp.WithOutputSchema[AnalyzeResponse](),
	)
	s.mcpServer.AddTool(analyzeTool, mcp.NewStructuredToolHandler(s.handleAnalyze))

	// TOOL: list_threads
	s.mcpServer.AddTool(mcp.NewTool("list_threads",
		mcp.WithDescription("List the stored conversation threads."),
	), s.handleListThreads)

	// TOOL: get_thread
	s.mcpServer.AddTool(mcp.NewTool("get_thread",
		mcp.WithDescription("Get the last checkpoint of a thread, including its conversation history."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread ID")),
	), s.handleGetThread)
}

func (s *Server) handleAnalyze(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (AnalyzeResponse, error) {
	req := arbiter.Request{}
	req.Query, _ = args["query"].(string)
	req.Domain, _ = args["domain"].(string)
	req.ThreadID, _ = args["thread_id"].(string)
	if raw, ok := args["user_selections"].(string); ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &req.Selections); err != nil {
			return AnalyzeResponse{}, fmt.Errorf("user_selections must be a JSON array of strings: %w", err)
		}
	}

	var err error
	if req.Query, err = sanitize.Input(req.Query); err == nil {
		req.Selections, err = sanitize.All(req.Selections)
	}
	if err != nil {
		s.logger.Warn("MCP analyze: input rejected", "err", err, "size", len(req.Query))
		return AnalyzeResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	resp, err := s.agent.Run(ctx, req)
	if err != nil {
		return AnalyzeResponse{}, fmt.Errorf("analysis failed: %w", err)
	}
	return AnalyzeResponse{ThreadID: resp.ThreadID, Turn: resp.Turn, Result: resp.Result}, nil
}

func (s *Server) handleListThreads(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threads, err := s.agent.Threads(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if threads == nil {
		threads = []string{}
	}
	jsonBytes, _ := json.Marshal(threads)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetThread(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID := request.GetString("thread_id", "")
	if threadID == "" {
		return mcp.NewToolResultError("thread_id is required"), nil
	}
	state, err := s.agent.History(ctx, threadID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(state)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	if s.diagram == "" {
		return
	}
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Stage Graph",
		mcp.WithMIMEType("text/vnd.mermaid"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "text/vnd.mermaid",
				Text:     s.diagram,
			},
		}, nil
	})
}
