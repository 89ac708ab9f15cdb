package middleware

import (
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// errorBody is what the UI renders. Field points at the offending profile
// key for validation errors; Retryable is false when the same step cannot
// succeed again.
type errorBody struct {
	Code       apperrors.ErrorType `json:"code"`
	Message    string              `json:"message"`
	Field      string              `json:"field,omitempty"`
	Suggestion string              `json:"suggestion,omitempty"`
	Retryable  bool                `json:"retryable"`
	RequestID  string              `json:"request_id,omitempty"`
}

// ErrorHandler renders the last handler error once the chain has run.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}

		appErr := toAppError(c.Errors.Last())
		fields := []any{
			"route", c.Request.Method + " " + c.FullPath(),
			"code", appErr.Type,
			"session_id", c.GetString(ContextSessionKey),
		}
		if appErr.Field != "" {
			fields = append(fields, "field", appErr.Field)
		}
		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "Request failed", fields...)
		} else {
			logger.Warn(appErr.Message, fields...)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, errorBody{
			Code:       appErr.Type,
			Message:    appErr.Message,
			Field:      appErr.Field,
			Suggestion: appErr.Suggestion,
			Retryable:  !apperrors.Fatal(appErr),
			RequestID:  c.GetString(ContextRequestID),
		})
	}
}

// toAppError maps binding failures to INVALID_REQUEST; other foreign errors
// become INTERNAL_ERROR.
func toAppError(e *gin.Error) *apperrors.AppError {
	if e.IsType(gin.ErrorTypeBind) {
		if _, ok := e.Err.(*apperrors.AppError); !ok {
			return apperrors.New(apperrors.ErrInvalidRequest, e.Err.Error(), e.Err)
		}
	}
	return apperrors.Wrap(e.Err)
}
