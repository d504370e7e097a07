// Package mcp resolves workspace tool calls against an MCP tool server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/resilience"
)

type toolCaller interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

type Resolver struct {
	caller   toolCaller
	executor *resilience.Executor
}

func NewResolver(caller toolCaller, executor *resilience.Executor) *Resolver {
	return &Resolver{caller: caller, executor: executor}
}

// Dial connects to a streamable-HTTP MCP server and completes the initialize handshake.
func Dial(ctx context.Context, url string, headers map[string]string) (*client.Client, error) {
	c, err := client.NewStreamableHttpClient(url, transport.WithHTTPHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	if err := Initialize(ctx, c); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func Initialize(ctx context.Context, c *client.Client) error {
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start mcp client: %w", err)
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "action-orchestrator",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize mcp session: %w", err)
	}
	return nil
}

// ResolveBatch runs the calls in order. A tool-level failure is reported on its result;
// a transport failure aborts the batch.
func (r *Resolver) ResolveBatch(ctx context.Context, tenantID string, calls []domain.ToolCall) ([]domain.WorkspaceResult, error) {
	results := make([]domain.WorkspaceResult, 0, len(calls))
	for _, call := range calls {
		res, err := r.call(ctx, tenantID, call)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Resolver) call(ctx context.Context, tenantID string, call domain.ToolCall) (domain.WorkspaceResult, error) {
	args := make(map[string]any, len(call.Args)+1)
	for k, v := range call.Args {
		args[k] = v
	}
	args["tenant_id"] = tenantID

	req := mcp.CallToolRequest{}
	req.Params.Name = call.Tool
	req.Params.Arguments = args

	op := resilience.Operation{Collaborator: resilience.CollaboratorWorkspace, Name: call.Tool}
	out, err := resilience.Do(ctx, r.executor, op, func(callCtx context.Context) (*mcp.CallToolResult, error) {
		return r.caller.CallTool(callCtx, req)
	}, classify)
	if err != nil {
		return domain.WorkspaceResult{}, wrapError("workspace "+call.Tool, err)
	}

	result := domain.WorkspaceResult{CallID: call.ID, Tool: call.Tool, Items: []map[string]any{}}
	text := resultText(out)
	if out.IsError {
		result.Error = strings.TrimSpace(text)
		if result.Error == "" {
			result.Error = "tool failed"
		}
		return result, nil
	}

	raw := text
	if out.StructuredContent != nil {
		encoded, err := json.Marshal(out.StructuredContent)
		if err == nil {
			raw = string(encoded)
		}
	}
	items, single, err := decodeItems(raw)
	if err != nil {
		return domain.WorkspaceResult{}, domain.WrapError(domain.ErrUpstream, "workspace "+call.Tool, err)
	}
	result.Items = items
	result.Single = single
	return result, nil
}

func resultText(out *mcp.CallToolResult) string {
	var b strings.Builder
	for _, content := range out.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			b.WriteString(c.Text)
		case *mcp.TextContent:
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// decodeItems accepts a JSON array (list), an object with an "items" array (list), or any
// other object (singleton).
func decodeItems(raw string) ([]map[string]any, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return []map[string]any{}, false, nil
	}
	if strings.HasPrefix(raw, "[") {
		var items []map[string]any
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, false, fmt.Errorf("decode tool list: %w", err)
		}
		return items, false, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, false, fmt.Errorf("decode tool result: %w", err)
	}
	if list, ok := obj["items"].([]any); ok {
		items := make([]map[string]any, 0, len(list))
		for _, entry := range list {
			item, ok := entry.(map[string]any)
			if !ok {
				return nil, false, fmt.Errorf("tool list entry is %T, want object", entry)
			}
			items = append(items, item)
		}
		return items, false, nil
	}
	return []map[string]any{obj}, true, nil
}

func classify(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func wrapError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return domain.WrapError(domain.ErrUpstream, op, err)
}
