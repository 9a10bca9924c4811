package tool

import (
	"errors"
	"strings"

	"flightdesk/internal/domain"
)

// retryableSentinels are domain errors that indicate a transient failure.
var retryableSentinels = []error{
	domain.ErrTimeout,
	domain.ErrProviderError,
	domain.ErrToolProviderUnavailable,
	domain.ErrRateLimit,
	domain.ErrContextOverflow,
}

// retryablePatterns are matched case-insensitively against error text for
// errors that carry no sentinel, such as raw network errors.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"transport closed",
	"try again",
}

// IsRetryable reports whether a failed tool call may succeed if repeated.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
