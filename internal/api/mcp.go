package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/ledger"
)

const recentInvocations = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store              Store
	ApplyOnceAtCompany bool
	Logger             *slog.Logger
}

// NewMCPServer creates an MCP server exposing the ledger, the answer cache
// and the cost log as tools.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := server.NewMCPServer(
		"applybot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("applybot: read what the job application bot has applied to, answered and spent."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ledger_check",
			mcp.WithDescription("Check whether a job at a company was already applied to (or would be skipped as a duplicate) for a search profile."),
			mcp.WithString("user", mcp.Description("Login of the searching user"), mcp.Required()),
			mcp.WithString("job_title", mcp.Description("Job title of the search profile"), mcp.Required()),
			mcp.WithString("company", mcp.Description("Company name as shown on the vacancy"), mcp.Required()),
			mcp.WithString("job", mcp.Description("Vacancy title")),
		),
		mcpLedgerCheck(deps),
	)

	s.AddTool(
		mcp.NewTool("answers_lookup",
			mcp.WithDescription("Look up the cached answer to an application question. Matching is exact after normalization."),
			mcp.WithString("question", mcp.Description("Question text"), mcp.Required()),
		),
		mcpAnswersLookup(deps),
	)

	s.AddTool(
		mcp.NewTool("cost_summary",
			mcp.WithDescription("Summarize model calls: count, tokens and total cost."),
		),
		mcpCostSummary(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"applybot://invocations/recent",
			"Recent Model Calls",
			mcp.WithResourceDescription("Last 10 model calls with truncated replies"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpLedgerCheck(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("user")
		if err != nil {
			return mcpError("user is required"), nil
		}
		title, err := req.RequireString("job_title")
		if err != nil {
			return mcpError("job_title is required"), nil
		}
		company, err := req.RequireString("company")
		if err != nil {
			return mcpError("company is required"), nil
		}
		job := req.GetString("job", "")

		id := ledger.Identity{UserLogin: user, JobTitle: title}
		res, err := CheckLedger(ctx, deps.Store, deps.ApplyOnceAtCompany, id, company, job)
		if err != nil {
			return mcpError(fmt.Sprintf("ledger check failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpAnswersLookup(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		cache, err := answers.Open(ctx, deps.Store, deps.Logger)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load answers: %v", err)), nil
		}
		answer, ok := cache.Lookup(question)
		if !ok {
			return mcpText("no cached answer"), nil
		}
		return mcpText(answer), nil
	}
}

func mcpCostSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sum, err := deps.Store.CostSummary(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to summarize costs: %v", err)), nil
		}
		return mcpJSON(sum)
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		recs, err := deps.Store.ListInvocations(ctx, recentInvocations)
		if err != nil {
			return nil, fmt.Errorf("failed to list invocations: %w", err)
		}

		type callSummary struct {
			ID     string  `json:"id"`
			Time   string  `json:"time"`
			Model  string  `json:"model"`
			Tokens int     `json:"total_tokens"`
			Cost   float64 `json:"total_cost"`
			Reply  string  `json:"reply"`
		}

		summaries := make([]callSummary, len(recs))
		for i, rec := range recs {
			reply := rec.Reply
			if utf8.RuneCountInString(reply) > 200 {
				runes := []rune(reply)
				reply = string(runes[:200]) + "..."
			}
			summaries[i] = callSummary{
				ID:     rec.ID,
				Time:   rec.Time.Format(time.RFC3339),
				Model:  rec.Model,
				Tokens: rec.TotalTokens,
				Cost:   rec.Cost,
				Reply:  reply,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal invocations: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
