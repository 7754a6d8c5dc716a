// Package errors provides standardized error handling for the assistant.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnknownAction    ErrorCode = "UNKNOWN_ACTION"

	ErrCodeTickerNotFound        ErrorCode = "TICKER_NOT_FOUND"
	ErrCodeMarketDataUnavailable ErrorCode = "MARKET_DATA_UNAVAILABLE"
	ErrCodeFundNotFound          ErrorCode = "FUND_NOT_FOUND"
	ErrCodeFundListUnavailable   ErrorCode = "FUND_LIST_UNAVAILABLE"

	ErrCodeLLMUnavailable   ErrorCode = "LLM_UNAVAILABLE"
	ErrCodeLLMTimeout       ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMParsingFailed ErrorCode = "LLM_PARSING_FAILED"

	ErrCodeRetrievalFailed ErrorCode = "RETRIEVAL_FAILED"
	ErrCodeIndexNotFound   ErrorCode = "INDEX_NOT_FOUND"

	ErrCodeProfileLoadFailed ErrorCode = "PROFILE_LOAD_FAILED"
	ErrCodeProfileSaveFailed ErrorCode = "PROFILE_SAVE_FAILED"
	ErrCodeProfileNotFound   ErrorCode = "PROFILE_NOT_FOUND"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeCacheUnavailable         ErrorCode = "CACHE_UNAVAILABLE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Constructors

// NewValidationError creates a non-retryable parameter validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Parameter validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownActionError creates a non-retryable unknown action error.
func NewUnknownActionError(action string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownAction,
		Message:   fmt.Sprintf("Unknown action: %s", action),
		Details:   fmt.Sprintf("action: %s", action),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTickerNotFoundError creates a non-retryable ticker lookup error.
func NewTickerNotFoundError(query string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTickerNotFound,
		Message:   "No NSE ticker matched the query",
		Details:   fmt.Sprintf("query: %s", query),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMarketDataUnavailableError creates a retryable upstream market data error.
func NewMarketDataUnavailableError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMarketDataUnavailable,
		Message:   fmt.Sprintf("Market data source '%s' error", source),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewFundNotFoundError creates a non-retryable fund search error.
func NewFundNotFoundError(query string) *StandardError {
	return &StandardError{
		Code:      ErrCodeFundNotFound,
		Message:   "No mutual fund matched the query",
		Details:   fmt.Sprintf("query: %s", query),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFundListUnavailableError creates a retryable fund dataset error.
func NewFundListUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFundListUnavailable,
		Message:   "Mutual fund list could not be loaded",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMUnavailableError creates a retryable LLM connectivity error.
func NewLLMUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMUnavailable,
		Message:   "LLM endpoint error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM call timeout",
		Details:   "completion call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMParsingFailedError creates a non-retryable LLM output parsing error.
func NewLLMParsingFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMParsingFailed,
		Message:   "LLM response could not be parsed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetrievalFailedError creates a non-retryable knowledge retrieval error.
// Retrieval failures degrade to an empty context, so retries buy nothing.
func NewRetrievalFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrievalFailed,
		Message:   "Knowledge retrieval failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexNotFoundError creates a non-retryable index not found error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotFound,
		Message:   "Knowledge index not found",
		Details:   fmt.Sprintf("indexName: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProfileLoadFailedError creates a retryable profile read error.
func NewProfileLoadFailedError(userID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileLoadFailed,
		Message:   "User profile could not be loaded",
		Details:   fmt.Sprintf("userId: %s, error: %s", userID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProfileSaveFailedError creates a retryable profile write error.
func NewProfileSaveFailedError(userID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileSaveFailed,
		Message:   "User profile could not be saved",
		Details:   fmt.Sprintf("userId: %s, error: %s", userID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProfileNotFoundError creates a non-retryable profile lookup error.
func NewProfileNotFoundError(userID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileNotFound,
		Message:   "User profile not found",
		Details:   fmt.Sprintf("userId: %s", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable cache error.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Cache operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeMarketDataUnavailable,
		ErrCodeFundListUnavailable,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeProfileLoadFailed,
		ErrCodeProfileSaveFailed,
		ErrCodeCacheUnavailable:
		return 3

	case ErrCodeLLMUnavailable:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "UNKNOWN"):
		return "VALIDATION"
	case strings.Contains(codeStr, "TICKER") || strings.Contains(codeStr, "MARKET") || strings.Contains(codeStr, "FUND"):
		return "MARKET_DATA"
	case strings.Contains(codeStr, "LLM"):
		return "AI"
	case strings.Contains(codeStr, "RETRIEVAL") || strings.Contains(codeStr, "INDEX"):
		return "RETRIEVAL"
	case strings.Contains(codeStr, "PROFILE"):
		return "PROFILE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CACHE"):
		return "STORAGE"
	default:
		return "OTHER"
	}
}
