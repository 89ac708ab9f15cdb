package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrNoWalletProvider     ErrorType = "NO_WALLET_PROVIDER"
	ErrNoAccount            ErrorType = "NO_ACCOUNT"
	ErrInvalidAddress       ErrorType = "INVALID_ADDRESS"
	ErrWalletMismatch       ErrorType = "WALLET_MISMATCH"
	ErrChainMismatch        ErrorType = "CHAIN_MISMATCH"
	ErrSignatureFailed      ErrorType = "SIGNATURE_FAILED"
	ErrSiweAuthFailed       ErrorType = "SIWE_AUTH_FAILED"
	ErrTokenRetrievalFailed ErrorType = "TOKEN_RETRIEVAL_FAILED"
	ErrValidation           ErrorType = "VALIDATION_ERROR"
	ErrChallengeFailed      ErrorType = "CHALLENGE_FAILED"
	ErrVerifyFailed         ErrorType = "VERIFY_FAILED"
	ErrInvalidRedirect      ErrorType = "INVALID_REDIRECT"
	ErrPolling              ErrorType = "POLLING_ERROR"
	ErrFrontdoorDisabled    ErrorType = "FRONTDOOR_DISABLED"
	ErrIdentityAppMissing   ErrorType = "IDENTITY_APP_MISSING"
	ErrPrerequisite         ErrorType = "PREREQUISITE_MISSING"
	ErrFlowInProgress       ErrorType = "FLOW_IN_PROGRESS"
	ErrStaleSession         ErrorType = "STALE_SESSION"
	ErrAuthFailed           ErrorType = "AUTH_FAILED"
	ErrInvalidRequest       ErrorType = "INVALID_REQUEST"
	ErrNotFound             ErrorType = "NOT_FOUND"
	ErrUpstream             ErrorType = "UPSTREAM_ERROR"
	ErrInternal             ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Field      string    `json:"field,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

// Error returns the message unchanged when there is no cause so that gateway
// text reaches the caller verbatim.
func (e *AppError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

// NewValidation reports a single violated RuntimeConfig invariant.
func NewValidation(field, msg string) *AppError {
	e := New(ErrValidation, msg, nil)
	e.Field = field
	return e
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether err carries an AppError of the given type anywhere in its chain.
func Is(err error, errType ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// TypeOf returns the error type, or ErrInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrInternal
}

// Fatal reports conditions the user cannot retry from the same step.
func Fatal(err error) bool {
	switch TypeOf(err) {
	case ErrInvalidRedirect, ErrFrontdoorDisabled, ErrIdentityAppMissing:
		return true
	default:
		return false
	}
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation, ErrInvalidRequest, ErrInvalidAddress, ErrChainMismatch, ErrPrerequisite:
		return http.StatusBadRequest
	case ErrAuthFailed, ErrSiweAuthFailed, ErrTokenRetrievalFailed, ErrSignatureFailed:
		return http.StatusUnauthorized
	case ErrWalletMismatch, ErrFlowInProgress, ErrStaleSession:
		return http.StatusConflict
	case ErrNoWalletProvider, ErrNoAccount:
		return http.StatusPreconditionFailed
	case ErrFrontdoorDisabled, ErrIdentityAppMissing:
		return http.StatusServiceUnavailable
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream, ErrChallengeFailed, ErrVerifyFailed, ErrPolling, ErrInvalidRedirect:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrNoWalletProvider:
		return "Install or unlock a wallet and try again."
	case ErrNoAccount:
		return "Unlock your wallet and approve the account request."
	case ErrChainMismatch:
		return "Switch your wallet to the required network and reconnect."
	case ErrSignatureFailed:
		return "Approve the signature request in your wallet."
	case ErrSiweAuthFailed, ErrTokenRetrievalFailed:
		return "Sign in again."
	case ErrValidation:
		return "Fix the highlighted field and submit again."
	case ErrChallengeFailed, ErrVerifyFailed:
		return "Check the configuration or re-authenticate, then retry the launch."
	case ErrWalletMismatch:
		return "Log out before connecting a different wallet."
	case ErrFlowInProgress:
		return "Wait for the current step to finish."
	default:
		return ""
	}
}
