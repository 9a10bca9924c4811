package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightdesk/internal/domain"
)

func TestSchemaValidation(t *testing.T) {
	seatSchema := `{
		"type": "object",
		"properties": {
			"booking_id": {"type": "string"},
			"preference": {"type": "string", "enum": ["aisle", "window", "middle"]}
		},
		"required": ["preference"]
	}`

	tests := []struct {
		name      string
		params    string
		wantError bool
		wantText  string
	}{
		{"valid", `{"preference":"aisle"}`, false, "ok"},
		{"valid with optional", `{"booking_id":"01J","preference":"window"}`, false, "ok"},
		{"missing required", `{}`, true, "do not match its schema"},
		{"enum violation", `{"preference":"cockpit"}`, true, "do not match its schema"},
		{"wrong type", `{"preference":3}`, true, "do not match its schema"},
		{"malformed JSON", `{"preference":`, true, "invalid JSON arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &stubTool{name: "assign_seat", schema: json.RawMessage(seatSchema)}
			wrapped, err := WithSchemaValidation(inner)
			require.NoError(t, err)

			res, err := wrapped.Execute(context.Background(), json.RawMessage(tt.params))
			require.NoError(t, err)
			assert.Equal(t, tt.wantError, res.IsError)
			assert.Contains(t, res.Content, tt.wantText)
			if tt.wantError {
				assert.Equal(t, int32(0), inner.calls.Load())
			}
		})
	}
}

func TestSchemaValidationNamesEveryField(t *testing.T) {
	schema := `{
		"type": "object",
		"properties": {
			"origin": {"type": "string"},
			"date": {"type": "string"}
		},
		"required": ["origin", "date"]
	}`
	inner := &stubTool{name: "book_flight", schema: json.RawMessage(schema)}
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)

	res, err := wrapped.Execute(context.Background(), json.RawMessage(`{"origin":7}`))
	require.NoError(t, err)
	require.True(t, res.IsError)
	assert.Contains(t, res.Content, "/origin")
	assert.Contains(t, res.Content, "date")
	assert.Contains(t, res.Content, "; ")
}

func TestSchemaValidationEmptyParams(t *testing.T) {
	inner := &stubTool{name: "get_booking", schema: json.RawMessage(`{"type":"object","properties":{}}`)}
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)

	res, err := wrapped.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{}`, string(inner.got))
}

func TestSchemaValidationNoSchema(t *testing.T) {
	inner := &stubTool{name: "ping"}
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)
	assert.Same(t, domain.Tool(inner), wrapped)
}

func TestSchemaValidationCompileError(t *testing.T) {
	_, err := WithSchemaValidation(&stubTool{name: "broken", schema: json.RawMessage(`{"type": 12}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestSchemaValidationDelegatesMetadata(t *testing.T) {
	inner := &stubTool{name: "book_flight", schema: json.RawMessage(bookSchema)}
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)
	assert.Equal(t, "book_flight", wrapped.Name())
	assert.Equal(t, inner.Description(), wrapped.Description())
	assert.Equal(t, inner.Schema(), wrapped.Schema())
}
