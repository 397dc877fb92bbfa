package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/client"
	"github.com/rmax-ai/readgraph/pkg/viewer"
)

const (
	documentsURI = "readgraph://analytics/documents"
	timelineURI  = "readgraph://analytics/timeline"
	documentURI  = "readgraph://document"
	promptName   = "readgraph-reading-coach"
)

// Server adapts readgraphd to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"readgraph",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		documentsURI,
		"Reading Analytics by Document",
		mcp.WithResourceDescription("Per-document reading time and highlight totals across all users"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadDocuments)

	s.mcpServer.AddResource(mcp.NewResource(
		timelineURI,
		"Reading Timelines",
		mcp.WithResourceDescription("Stitched scroll-position timelines with highlight markers per user and document"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadTimeline)

	s.mcpServer.AddResource(mcp.NewResource(
		documentURI,
		"Open Document",
		mcp.WithResourceDescription("The document open in the daemon, its current purpose and session"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadDocument)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"open_document",
		mcp.WithDescription("Open a document for a reader so sessions and highlights are tracked against it."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("The reader")),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("The document")),
		mcp.WithNumber("page_height", mcp.Description("Rendered page height in pixels")),
		mcp.WithNumber("page_count", mcp.Description("Number of pages")),
	), s.handleOpenDocument)

	s.mcpServer.AddTool(mcp.NewTool(
		"reading_report",
		mcp.WithDescription("Render an analytics report as CSV: documents, users, purposes or timeline."),
		mcp.WithString("type", mcp.Description("Report type (default documents)")),
		mcp.WithString("document_id", mcp.Description("Required for users and purposes reports")),
		mcp.WithString("owner_id", mcp.Description("Required for purposes reports")),
		mcp.WithString("users", mcp.Description("Comma separated reader filter")),
	), s.handleReport)

	s.mcpServer.AddTool(mcp.NewTool(
		"suggest_reading_goals",
		mcp.WithDescription("Propose reading goals for the open document from its text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text")),
		mcp.WithString("prompt", mcp.Description("Prompt override")),
		mcp.WithBoolean("refresh", mcp.Description("Ignore a cached suggestion")),
	), s.handleSuggest)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		promptName,
		mcp.WithPromptDescription("Explains readgraph concepts (purposes, sessions, highlights, timelines)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadDocuments(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	rows, err := s.apiClient.Documents(ctx, analytics.Selection{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document analytics: %w", err)
	}
	return jsonContents(request.Params.URI, rows)
}

func (s *Server) handleReadTimeline(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	tl, err := s.apiClient.Timeline(ctx, analytics.Selection{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timelines: %w", err)
	}
	return jsonContents(request.Params.URI, tl)
}

func (s *Server) handleReadDocument(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	doc, err := s.apiClient.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open document: %w", err)
	}
	return jsonContents(request.Params.URI, doc)
}

func (s *Server) handleOpenDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.apiClient.OpenDocument(ctx, client.OpenRequest{
		OwnerID:    mcp.ParseString(request, "owner_id", ""),
		DocumentID: mcp.ParseString(request, "document_id", ""),
		Layout: viewer.Metrics{
			PageHeight: mcp.ParseFloat64(request, "page_height", 0),
			PageCount:  mcp.ParseInt(request, "page_count", 0),
		},
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Opened %s for %s (session %s)", doc.DocumentID, doc.OwnerID, doc.SessionState)), nil
}

func (s *Server) handleReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := client.ReportOptions{
		Type:       mcp.ParseString(request, "type", "documents"),
		Format:     "csv",
		DocumentID: mcp.ParseString(request, "document_id", ""),
		OwnerID:    mcp.ParseString(request, "owner_id", ""),
	}
	if users := mcp.ParseString(request, "users", ""); users != "" {
		opts.Selection.UserIDs = strings.Split(users, ",")
	}
	out, err := s.apiClient.Report(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleSuggest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sug, err := s.apiClient.Suggest(ctx, client.SuggestRequest{
		Text:   mcp.ParseString(request, "text", ""),
		Prompt: mcp.ParseString(request, "prompt", ""),
	}, mcp.ParseBoolean(request, "refresh", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Progress: %s\n", sug.ReadingProgress)
	for i, g := range sug.ReadingGoals {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, g.GoalName, g.GoalDescription)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != promptName {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are helping a reader who annotates documents with readgraph.

Concepts:
- Purpose: a named reading intent (title and color) declared before highlighting.
- Session: a timed span of reading under one purpose. Scroll position is sampled while it runs.
- Highlight: a text span or image region, tagged with the purpose active when it was made.
- Graph: highlights become nodes linked in creation order; readers group and connect them.
- Timeline: a user's sessions stitched end to end, with highlight markers on top.

Use the analytics resources to see where time went. Use 'reading_report' for tables and
'suggest_reading_goals' when the reader has no purposes yet.
`

	return mcp.NewGetPromptResult(
		promptName,
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
