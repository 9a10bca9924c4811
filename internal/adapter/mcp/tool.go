package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"flightdesk/internal/adapter/tool"
	"flightdesk/internal/domain"
	"flightdesk/internal/infra/tracer"
)

// defaultCallTimeout bounds one tools/call round trip.
const defaultCallTimeout = 30 * time.Second

// remoteTool is a tool hosted by the remote provider. It is bound to the
// session that listed it and stops working once that session is closed.
type remoteTool struct {
	client  mcpClient
	def     mcp.Tool
	timeout time.Duration
	logger  *slog.Logger
}

var _ domain.Tool = (*remoteTool)(nil)

func newRemoteTool(client mcpClient, def mcp.Tool, timeout time.Duration, logger *slog.Logger) *remoteTool {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &remoteTool{client: client, def: def, timeout: timeout, logger: logger}
}

func (t *remoteTool) Name() string { return t.def.Name }

func (t *remoteTool) Description() string {
	if t.def.Description != "" {
		return t.def.Description
	}
	return fmt.Sprintf("Remote tool %q", t.def.Name)
}

func (t *remoteTool) Schema() domain.ToolSchema {
	params := json.RawMessage(`{"type":"object","properties":{}}`)
	switch {
	case len(t.def.RawInputSchema) > 0:
		params = t.def.RawInputSchema
	case t.def.InputSchema.Properties != nil || t.def.InputSchema.Required != nil:
		if data, err := json.Marshal(t.def.InputSchema); err == nil {
			params = data
		}
	}
	return domain.ToolSchema{
		Name:        t.def.Name,
		Description: t.Description(),
		Parameters:  params,
	}
}

// Execute forwards params as a tools/call request. Transport failures come
// back as retryable error results so the model can see them.
func (t *remoteTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "mcp.call_tool")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("tool.name", t.def.Name))

	var args map[string]any
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{
				Content: fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
			}, nil
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.def.Name
	req.Params.Arguments = args

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = domain.NewSubSystemError("mcp", "remoteTool.Execute", domain.ErrTimeout, t.def.Name)
		}
		tracer.RecordError(span, err)
		t.logger.Warn("remote tool call failed", "tool", t.def.Name, "error", err)
		return &domain.ToolResult{
			Content:     fmt.Sprintf("tool %s failed: %v", t.def.Name, err),
			IsError:     true,
			IsRetryable: isTransportError(err) || tool.IsRetryable(err),
		}, nil
	}

	t.logger.Debug("remote tool call",
		"tool", t.def.Name,
		"is_error", result.IsError,
		"duration", time.Since(start))
	if result.IsError {
		span.SetAttributes(tracer.StringAttr("tool.outcome", "error"))
	} else {
		tracer.SetOK(span)
	}

	return &domain.ToolResult{
		Content: extractContent(result),
		IsError: result.IsError,
	}, nil
}

func isTransportError(err error) bool {
	var te *transport.Error
	return errors.As(err, &te) || errors.Is(err, transport.ErrTransportClosed)
}

// extractContent joins text parts; other content kinds are rendered as JSON.
func extractContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	if len(parts) == 0 && result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			return string(data)
		}
	}
	return strings.Join(parts, "\n")
}
