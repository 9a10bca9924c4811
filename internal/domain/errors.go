package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Combine with NewSubSystemError when the failure
// belongs to a specific subsystem.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrLimitReached  = fmt.Errorf("limit reached")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrMaxIterations    = fmt.Errorf("agent reached max iterations")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")

	// Tool provider errors.
	ErrToolProviderUnavailable = fmt.Errorf("tool provider unavailable")
	ErrNoTools                 = fmt.Errorf("tool provider returned no tools")

	// Group chat errors.
	ErrUnknownSpeaker        = fmt.Errorf("unknown speaker")
	ErrConversationAborted   = fmt.Errorf("conversation aborted")
	ErrSpeakerSelectorFailed = fmt.Errorf("speaker selection failed")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrToolFailure     = fmt.Errorf("tool execution failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Manager.Run")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "mcp", "groupchat"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
// Nothing in the conversation loop retries; callers use this for reporting only.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrContextOverflow) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for logs and exit reporting.
type ErrorCode string

const (
	CodeUnknown                 ErrorCode = "UNKNOWN"
	CodeProviderNotFound        ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound            ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure             ErrorCode = "TOOL_FAILURE"
	CodeMaxIterations           ErrorCode = "MAX_ITERATIONS"
	CodeConfigLoad              ErrorCode = "CONFIG_LOAD"
	CodeDecryption              ErrorCode = "DECRYPTION"
	CodeToolProviderUnavailable ErrorCode = "TOOL_PROVIDER_UNAVAILABLE"
	CodeNoTools                 ErrorCode = "NO_TOOLS"
	CodeUnknownSpeaker          ErrorCode = "UNKNOWN_SPEAKER"
	CodeConversationAborted     ErrorCode = "CONVERSATION_ABORTED"
	CodeSpeakerSelectorFailed   ErrorCode = "SPEAKER_SELECTOR_FAILED"
	CodeContextOverflow         ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit               ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid             ErrorCode = "AUTH_INVALID"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate    ErrorCode = "AGENT_DUPLICATE"
	CodeToolDuplicate     ErrorCode = "TOOL_DUPLICATE"
	CodeBookingNotFound   ErrorCode = "BOOKING_NOT_FOUND"
	CodeRoundLimitReached ErrorCode = "ROUND_LIMIT_REACHED"
	CodeMCPTimeout        ErrorCode = "MCP_TIMEOUT"

	// Category codes, the fallback when no subsystem-specific code matches.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeLimitReached  ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrLimitReached:  CodeLimitReached,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,

	ErrProviderNotFound:        CodeProviderNotFound,
	ErrToolNotFound:            CodeToolNotFound,
	ErrToolFailure:             CodeToolFailure,
	ErrMaxIterations:           CodeMaxIterations,
	ErrConfigLoad:              CodeConfigLoad,
	ErrDecryption:              CodeDecryption,
	ErrToolProviderUnavailable: CodeToolProviderUnavailable,
	ErrNoTools:                 CodeNoTools,
	ErrUnknownSpeaker:          CodeUnknownSpeaker,
	ErrConversationAborted:     CodeConversationAborted,
	ErrSpeakerSelectorFailed:   CodeSpeakerSelectorFailed,
	ErrContextOverflow:         CodeContextOverflow,
	ErrRateLimit:               CodeRateLimit,
	ErrAuthInvalid:             CodeAuthInvalid,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"groupchat": CodeAgentNotFound,
		"booking":   CodeBookingNotFound,
	},
	ErrDuplicate: {
		"groupchat": CodeAgentDuplicate,
		"tool":      CodeToolDuplicate,
	},
	ErrLimitReached: {
		"groupchat": CodeRoundLimitReached,
	},
	ErrTimeout: {
		"mcp": CodeMCPTimeout,
	},
}

// errorCodeOrder fixes the walk order for wrapped errors so that the more
// specific sentinels win over the categories they may also wrap.
var errorCodeOrder = []error{
	ErrToolProviderUnavailable, ErrNoTools, ErrConversationAborted,
	ErrSpeakerSelectorFailed, ErrUnknownSpeaker, ErrMaxIterations,
	ErrProviderNotFound, ErrToolNotFound, ErrToolFailure, ErrConfigLoad,
	ErrDecryption, ErrContextOverflow, ErrRateLimit, ErrAuthInvalid,
	ErrNotFound, ErrDuplicate, ErrTimeout, ErrLimitReached,
	ErrInvalidInput, ErrProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// DomainErrors with a SubSystem resolve through subSystemCodeMap first.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for _, sentinel := range errorCodeOrder {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
