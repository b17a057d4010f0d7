// Package mcp exposes a scan.Scanner's action surface as MCP tools, in the
// teacher's cmd/purify-mcp idiom (one mcp.NewTool + server.ToolHandlerFunc
// pair per action, mcp.NewToolResultText/Error replies). Unlike the teacher,
// which speaks to a sibling Purify API process over HTTP, these handlers
// Dispatch directly against the in-process orchestrator.Router: there is no
// second process to proxy to, so the HTTP round trip the teacher needed is
// dead weight here.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/orchestrator"
	"github.com/use-agent/gallerydiscover/scan"
)

// New builds an MCP server exposing scan's action surface as tools. Serve it
// with server.ServeStdio or server.NewStreamableHTTPServer.
func New(s *scan.Scanner) *server.MCPServer {
	srv := server.NewMCPServer(
		"gallery-discover",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	srv.AddTool(mcp.NewTool("scan_start",
		mcp.WithDescription("Start a gallery discovery scan at a URL. Returns a scan_id immediately; the scan runs in the background, paginating and collecting images until it exhausts every pagination strategy."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The gallery page URL to start scanning from")),
	), handleScanStart(s))

	srv.AddTool(mcp.NewTool("scan_stop",
		mcp.WithDescription("Stop an in-progress scan before it terminates on its own."),
		mcp.WithString("scan_id", mcp.Required(), mcp.Description("The scan_id returned by scan_start")),
	), handleScanStop(s))

	srv.AddTool(mcp.NewTool("pagination_navigate_next",
		mcp.WithDescription("Manually advance a scan's pagination engine by one step, collecting any newly discovered images."),
		mcp.WithString("scan_id", mcp.Required(), mcp.Description("The scan_id returned by scan_start")),
	), handlePaginationNavigateNext(s))

	srv.AddTool(mcp.NewTool("pagination_get_state",
		mcp.WithDescription("Report a scan's current pagination state: visited URLs, learned patterns, failed strategies."),
		mcp.WithString("scan_id", mcp.Required(), mcp.Description("The scan_id returned by scan_start")),
	), handlePaginationGetState(s))

	srv.AddTool(mcp.NewTool("export_data",
		mcp.WithDescription("Export a scan's accumulated image records as JSON through the configured export sink."),
		mcp.WithString("scan_id", mcp.Required(), mcp.Description("The scan_id returned by scan_start")),
		mcp.WithString("filename", mcp.Description("Destination filename; defaults to scan-<scan_id>.json")),
	), handleExportData(s))

	srv.AddTool(mcp.NewTool("retry_submit",
		mcp.WithDescription("Resubmit a named operation to the retry manager under a given error category, independent of any scan."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Unique ID for this retry task")),
		mcp.WithString("operation_name", mcp.Required(), mcp.Description("Name of the registered operation to run")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Error category governing the retry policy, spelled exactly: Network, Timeout, Server, RateLimit, Cors, Extension or Default are retried; Permission, NotFound, Memory and Validation are not; any other value uses the Default policy")),
	), handleRetrySubmit(s))

	return srv
}

func handleScanStart(s *scan.Scanner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		env := s.Router().Dispatch(ctx, "", orchestrator.ActionScanStart, scan.ScanStartRequest{URL: url})
		if !env.OK {
			return mcp.NewToolResultError(env.Error), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("scan_id: %s", env.Data.(scan.ScanStartResponse).ScanID)), nil
	}
}

func handleScanStop(s *scan.Scanner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scanID, err := request.RequireString("scan_id")
		if err != nil {
			return mcp.NewToolResultError("scan_id is required"), nil
		}
		if env := s.Router().Dispatch(ctx, "", orchestrator.ActionScanStop, scanID); !env.OK {
			return mcp.NewToolResultError(env.Error), nil
		}
		return mcp.NewToolResultText("scan stopped"), nil
	}
}

func handlePaginationNavigateNext(s *scan.Scanner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scanID, err := request.RequireString("scan_id")
		if err != nil {
			return mcp.NewToolResultError("scan_id is required"), nil
		}
		env := s.Router().Dispatch(ctx, "", orchestrator.ActionPaginationNavigateNext, scanID)
		if !env.OK {
			return mcp.NewToolResultError(env.Error), nil
		}
		data, _ := json.MarshalIndent(env.Data, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	}
}

func handlePaginationGetState(s *scan.Scanner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scanID, err := request.RequireString("scan_id")
		if err != nil {
			return mcp.NewToolResultError("scan_id is required"), nil
		}
		env := s.Router().Dispatch(ctx, "", orchestrator.ActionPaginationGetState, scanID)
		if !env.OK {
			return mcp.NewToolResultError(env.Error), nil
		}
		data, _ := json.MarshalIndent(env.Data, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	}
}

func handleExportData(s *scan.Scanner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scanID, err := request.RequireString("scan_id")
		if err != nil {
			return mcp.NewToolResultError("scan_id is required"), nil
		}
		filename := request.GetString("filename", "")
		env := s.Router().Dispatch(ctx, "", orchestrator.ActionExportData, scan.ExportDataRequest{ScanID: scanID, Filename: filename})
		if !env.OK {
			return mcp.NewToolResultError(env.Error), nil
		}
		return mcp.NewToolResultText("export written"), nil
	}
}

func handleRetrySubmit(s *scan.Scanner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError("task_id is required"), nil
		}
		opName, err := request.RequireString("operation_name")
		if err != nil {
			return mcp.NewToolResultError("operation_name is required"), nil
		}
		categoryStr, err := request.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError("category is required"), nil
		}
		req := scan.RetrySubmitRequest{
			TaskID:    taskID,
			Operation: models.Operation{Name: opName},
			Category:  models.ErrorCategory(categoryStr),
		}
		if env := s.Router().Dispatch(ctx, "", orchestrator.ActionRetrySubmit, req); !env.OK {
			return mcp.NewToolResultError(env.Error), nil
		}
		return mcp.NewToolResultText("retry task submitted"), nil
	}
}
