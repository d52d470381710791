package unifiedllm

import (
	"errors"
	"fmt"
)

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type QuotaExceededError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type InvalidResponseError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, cause error, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message, Cause: cause},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		if errorCode == "context_length_exceeded" {
			return &ContextLengthError{ProviderError: pe}
		}
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 402:
		return &QuotaExceededError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message, Cause: cause}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		if errorCode == "insufficient_quota" {
			return &QuotaExceededError{ProviderError: pe}
		}
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		// Unknown errors default to retryable.
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable returns true if the error is safe to retry. Wrapped errors are
// classified by the first typed error in the chain.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var (
		authErr     *AuthenticationError
		deniedErr   *AccessDeniedError
		notFoundErr *NotFoundError
		invalidErr  *InvalidRequestError
		lengthErr   *ContextLengthError
		quotaErr    *QuotaExceededError
		filterErr   *ContentFilterError
		configErr   *ConfigurationError
		abortErr    *AbortError
		responseErr *InvalidResponseError
		rateErr     *RateLimitError
		serverErr   *ServerError
		networkErr  *NetworkError
		timeoutErr  *RequestTimeoutError
		providerErr *ProviderError
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &deniedErr), errors.As(err, &notFoundErr),
		errors.As(err, &invalidErr), errors.As(err, &lengthErr), errors.As(err, &quotaErr),
		errors.As(err, &filterErr), errors.As(err, &configErr), errors.As(err, &abortErr),
		errors.As(err, &responseErr):
		return false
	case errors.As(err, &rateErr), errors.As(err, &serverErr), errors.As(err, &networkErr),
		errors.As(err, &timeoutErr):
		return true
	case errors.As(err, &providerErr):
		return providerErr.Retryable
	default:
		// Unknown errors default to retryable.
		return true
	}
}
