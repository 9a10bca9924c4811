package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// argumentValidator checks tools/call arguments against the input schema a
// tool advertises.
type argumentValidator struct {
	schema *jsonschema.Schema
}

func newArgumentValidator(t mcp.Tool) (*argumentValidator, error) {
	raw := t.RawInputSchema
	if len(raw) == 0 {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal input schema for %q: %w", t.Name, err)
		}
		raw = b
	}
	schema, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid input schema for %q: %w", t.Name, err)
	}
	return &argumentValidator{schema: schema}, nil
}

func (v *argumentValidator) validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	result := v.schema.Validate(args)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}

// addValidatedTool registers handler behind argument validation. Arguments
// that do not match the schema come back as an error result and never reach
// the store.
func addValidatedTool(s *server.MCPServer, t mcp.Tool, handler server.ToolHandlerFunc) {
	v, err := newArgumentValidator(t)
	if err != nil {
		panic(err)
	}
	s.AddTool(t, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := v.validate(req.GetArguments()); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments for %s: %v", t.Name, err)), nil
		}
		return handler(ctx, req)
	})
}
