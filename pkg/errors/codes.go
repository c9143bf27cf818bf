package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_015"
)

// Aliases used by older call sites.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeUnauthorized = ErrCodeUnauthorized
	CodeForbidden    = ErrCodeForbidden
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeRateLimit    = ErrCodeTooManyRequests
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Sandbox Error Codes. Input-class failures are never retried.
const (
	// ErrCodeInputTooLong marks user input that exceeds the sandbox length cap.
	ErrCodeInputTooLong ErrorCode = "SANDBOX_001"
	// ErrCodePromptInjection marks input matching an injection pattern.
	// Nothing downstream of the sandbox may run once this is raised.
	ErrCodePromptInjection ErrorCode = "SANDBOX_002"
)

// Upstream Error Codes for the model and search providers.
// The transient trio (rate limit, timeout, connect) is the ONLY set of
// codes the retry loop is allowed to act on.
const (
	ErrCodeUpstreamRateLimit   ErrorCode = "UPSTREAM_001"
	ErrCodeUpstreamTimeout     ErrorCode = "UPSTREAM_002"
	ErrCodeUpstreamConnect     ErrorCode = "UPSTREAM_003"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_004"
	ErrCodeConfiguration       ErrorCode = "UPSTREAM_005"
)

// Pipeline Error Codes
const (
	ErrCodeRetrievalFailed ErrorCode = "PIPE_001"
	ErrCodeGradingFailed   ErrorCode = "PIPE_002"
	ErrCodeAnalysisFailed  ErrorCode = "PIPE_003"
	ErrCodeEmbeddingFailed ErrorCode = "PIPE_004"
	ErrCodeIndexingFailed  ErrorCode = "PIPE_005"
)

// Search / Storage Error Codes
const (
	ErrCodeSearchError       ErrorCode = "SRCH_001"
	ErrCodeSearchUnavailable ErrorCode = "SRCH_002"
	ErrCodeStorageError      ErrorCode = "STOR_001"
	ErrCodeMessageQueueError ErrorCode = "MSGQ_001"
)

// Infrastructure aliases.
const (
	CodeDBConnectionError = ErrCodeDatabaseError
	CodeDatabaseError     = ErrCodeDatabaseError
	CodeDBQueryError      = ErrCodeDatabaseError
	CodeCacheError        = ErrCodeCacheError
	CodeSearchError       = ErrCodeSearchError
	CodeMessageQueueError = ErrCodeMessageQueueError
	CodeStorageError      = ErrCodeStorageError
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeInputTooLong:    http.StatusBadRequest,
	ErrCodePromptInjection: http.StatusBadRequest,

	ErrCodeUpstreamRateLimit:   http.StatusServiceUnavailable,
	ErrCodeUpstreamTimeout:     http.StatusGatewayTimeout,
	ErrCodeUpstreamConnect:     http.StatusBadGateway,
	ErrCodeUpstreamUnavailable: http.StatusServiceUnavailable,
	ErrCodeConfiguration:       http.StatusInternalServerError,

	ErrCodeRetrievalFailed: http.StatusInternalServerError,
	ErrCodeGradingFailed:   http.StatusInternalServerError,
	ErrCodeAnalysisFailed:  http.StatusInternalServerError,
	ErrCodeEmbeddingFailed: http.StatusInternalServerError,
	ErrCodeIndexingFailed:  http.StatusInternalServerError,

	ErrCodeSearchError:       http.StatusInternalServerError,
	ErrCodeSearchUnavailable: http.StatusServiceUnavailable,
	ErrCodeStorageError:      http.StatusInternalServerError,
	ErrCodeMessageQueueError: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeInputTooLong:    "input exceeds maximum length",
	ErrCodePromptInjection: "input rejected by security filter",

	ErrCodeUpstreamRateLimit:   "upstream provider rate limited",
	ErrCodeUpstreamTimeout:     "upstream provider timed out",
	ErrCodeUpstreamConnect:     "failed to connect to upstream provider",
	ErrCodeUpstreamUnavailable: "upstream provider unavailable",
	ErrCodeConfiguration:       "upstream provider configuration error",

	ErrCodeRetrievalFailed: "prior-art retrieval failed",
	ErrCodeGradingFailed:   "relevance grading failed",
	ErrCodeAnalysisFailed:  "infringement analysis failed",
	ErrCodeEmbeddingFailed: "text embedding failed",
	ErrCodeIndexingFailed:  "document indexing failed",

	ErrCodeSearchError:       "search backend error",
	ErrCodeSearchUnavailable: "search backend unavailable",
	ErrCodeStorageError:      "object storage error",
	ErrCodeMessageQueueError: "message queue error",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// IsRetryable reports whether the code belongs to the transient upstream
// set. Retrying any other code is a bug.
func IsRetryable(code ErrorCode) bool {
	switch code {
	case ErrCodeUpstreamRateLimit, ErrCodeUpstreamTimeout, ErrCodeUpstreamConnect:
		return true
	}
	return false
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
