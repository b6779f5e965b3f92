package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/review"
	"github.com/joescharf/codereview/internal/store"
)

// Pinger reports whether the LLM endpoint is reachable.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// Server exposes the review pipeline and report store as MCP tools.
// Every call acts as the configured requester.
type Server struct {
	pipeline  *review.Pipeline
	store     store.Store
	pinger    Pinger
	requester models.Requester
	version   string
}

// NewServer creates the MCP server wrapper.
func NewServer(p *review.Pipeline, s store.Store, pinger Pinger, req models.Requester, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{
		pipeline:  p,
		store:     s,
		pinger:    pinger,
		requester: req,
		version:   version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("codereview", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.reviewFilesTool())
	srv.AddTool(s.listReportsTool())
	srv.AddTool(s.getReportTool())
	srv.AddTool(s.deleteReportTool())
	srv.AddTool(s.pingLLMTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// reportOut is the report summary returned to MCP clients. The filesystem
// location of the document is left out.
type reportOut struct {
	ID        string               `json:"id"`
	Owner     string               `json:"owner"`
	Files     []string             `json:"files"`
	ModelID   string               `json:"model_id"`
	Tokens    models.TokenUsage    `json:"tokens"`
	CreatedAt string               `json:"created_at"`
	Review    string               `json:"review,omitempty"`
	Estimates []complexityEstimate `json:"estimates,omitempty"`
}

type complexityEstimate struct {
	File  string `json:"file"`
	Time  string `json:"time"`
	Space string `json:"space"`
}

func toReportOut(r *models.Report, withReview bool) reportOut {
	out := reportOut{
		ID:        r.ID,
		Owner:     r.OwnerID,
		Files:     r.FileList(),
		ModelID:   r.Metadata.ModelID,
		Tokens:    r.Metadata.TokenUsage,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withReview {
		out.Review = r.ReviewContent
	}
	return out
}

// review_files
func (s *Server) reviewFilesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_files",
		mcp.WithDescription("Review local source files with the configured LLM and store a PDF report. Returns the report id, parsed section names, and per-file complexity estimates."),
		mcp.WithArray("paths", mcp.Required(), mcp.WithStringItems(), mcp.Description("Paths of the source files to review together")),
	)
	return tool, s.handleReviewFiles
}

func (s *Server) handleReviewFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := request.GetStringSlice("paths", nil)
	if len(paths) == 0 {
		return mcp.NewToolResultError("missing required parameter: paths"), nil
	}

	raw, err := ingest.ReadPaths(paths)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.pipeline.Run(ctx, s.requester, raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	out := toReportOut(res.Report, false)
	for _, e := range res.Estimates {
		out.Estimates = append(out.Estimates, complexityEstimate{
			File:  e.File,
			Time:  string(e.Time),
			Space: string(e.Space),
		})
	}
	return jsonResult(out)
}

// list_reports
func (s *Server) listReportsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_reports",
		mcp.WithDescription("List stored review reports visible to the configured user, newest first by default."),
		mcp.WithString("query", mcp.Description("Substring to match against file names and review text")),
		mcp.WithString("sort", mcp.Description("Sort field: date or filename")),
		mcp.WithString("order", mcp.Description("Sort order: asc or desc")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reports to return")),
	)
	return tool, s.handleListReports
}

func (s *Server) handleListReports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := store.Query{
		Text:   request.GetString("query", ""),
		SortBy: store.SortField(request.GetString("sort", "")),
		Order:  store.SortOrder(request.GetString("order", "")),
		Limit:  request.GetInt("limit", 0),
	}
	switch q.SortBy {
	case "", store.SortByDate, store.SortByFilename:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid sort: %s (use: date, filename)", q.SortBy)), nil
	}
	switch q.Order {
	case "", store.OrderAsc, store.OrderDesc:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid order: %s (use: asc, desc)", q.Order)), nil
	}

	reports, err := s.store.Search(ctx, s.requester, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reports: %v", err)), nil
	}
	out := make([]reportOut, len(reports))
	for i, r := range reports {
		out[i] = toReportOut(r, false)
	}
	return jsonResult(out)
}

// get_report
func (s *Server) getReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_report",
		mcp.WithDescription("Get a stored report including the full review text."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Report ID")),
	)
	return tool, s.handleGetReport
}

func (s *Server) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	r, err := s.store.Get(ctx, id, s.requester)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(toReportOut(r, true))
}

// delete_report
func (s *Server) deleteReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("delete_report",
		mcp.WithDescription("Delete a stored report and its PDF document."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Report ID")),
	)
	return tool, s.handleDeleteReport
}

func (s *Server) handleDeleteReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	if err := s.store.Delete(ctx, id, s.requester); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted report %s", id)), nil
}

// ping_llm
func (s *Server) pingLLMTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ping_llm",
		mcp.WithDescription("Check whether the configured LLM endpoint answers a minimal request."),
	)
	return tool, s.handlePingLLM
}

func (s *Server) handlePingLLM(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reachable := s.pinger != nil && s.pinger.Ping(ctx)
	return jsonResult(map[string]bool{"reachable": reachable})
}
