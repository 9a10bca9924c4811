package tool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"flightdesk/internal/domain"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout sentinel", domain.NewSubSystemError("mcp", "CallTool", domain.ErrTimeout, "book_flight"), true},
		{"provider unavailable", fmt.Errorf("call: %w", domain.ErrToolProviderUnavailable), true},
		{"rate limit", domain.ErrRateLimit, true},
		{"connection refused text", errors.New("dial tcp 127.0.0.1:8090: connect: connection refused"), true},
		{"deadline text", errors.New("context deadline exceeded"), true},
		{"transport closed text", errors.New("transport closed"), true},
		{"not found", domain.ErrToolNotFound, false},
		{"invalid input", domain.ErrInvalidInput, false},
		{"plain", errors.New("booking not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
