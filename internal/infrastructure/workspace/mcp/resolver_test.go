package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

func newWorkspaceServer(t *testing.T) *client.Client {
	t.Helper()
	s := server.NewMCPServer("workspace", "1.0.0", server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("search_invoices", mcp.WithString("query")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if req.GetArguments()["tenant_id"] != "tenant-1" {
				return mcp.NewToolResultError("tenant missing"), nil
			}
			return mcp.NewToolResultText(`[{"id":"inv-1","number":"INV-1"},{"id":"inv-2","number":"INV-2"}]`), nil
		})
	s.AddTool(mcp.NewTool("get_invoice", mcp.WithString("invoice_id")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(`{"id":"inv-1","number":"INV-1","amount":120.5}`), nil
		})
	s.AddTool(mcp.NewTool("get_receipt", mcp.WithString("receipt_id")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(`{"items":[{"id":"r-1"},{"id":"r-2"}]}`), nil
		})

	c, err := client.NewInProcessClient(s)
	if err != nil {
		t.Fatalf("NewInProcessClient() error = %v", err)
	}
	if err := Initialize(context.Background(), c); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestResolveBatchDecodesListsAndSingletons(t *testing.T) {
	resolver := NewResolver(newWorkspaceServer(t), nil)

	results, err := resolver.ResolveBatch(context.Background(), "tenant-1", []domain.ToolCall{
		{ID: "c1", Tool: "search_invoices", Args: map[string]any{"query": "acme"}},
		{ID: "c2", Tool: "get_invoice", Args: map[string]any{"invoice_id": "inv-1"}},
		{ID: "c3", Tool: "get_receipt"},
	})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].CallID != "c1" || results[0].Single || len(results[0].Items) != 2 {
		t.Fatalf("unexpected list result: %+v", results[0])
	}
	if !results[1].Single || results[1].Items[0]["number"] != "INV-1" {
		t.Fatalf("unexpected singleton result: %+v", results[1])
	}
	if results[2].Single || len(results[2].Items) != 2 {
		t.Fatalf("expected wrapped list, got %+v", results[2])
	}
}

func TestResolveBatchReportsToolErrors(t *testing.T) {
	resolver := NewResolver(newWorkspaceServer(t), nil)

	results, err := resolver.ResolveBatch(context.Background(), "other-tenant", []domain.ToolCall{
		{Tool: "search_invoices"},
	})
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}
	if results[0].Error != "tenant missing" {
		t.Fatalf("expected tool error, got %+v", results[0])
	}
}

type failingCaller struct{}

func (failingCaller) CallTool(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return nil, errors.New("connection reset")
}

func TestResolveBatchWrapsTransportFailure(t *testing.T) {
	resolver := NewResolver(failingCaller{}, nil)
	_, err := resolver.ResolveBatch(context.Background(), "tenant-1", []domain.ToolCall{{Tool: "get_invoice"}})
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestDecodeItemsEmpty(t *testing.T) {
	items, single, err := decodeItems("")
	if err != nil || single || len(items) != 0 {
		t.Fatalf("decodeItems(\"\") = %v, %v, %v", items, single, err)
	}
}
