package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/stacking-predict/internal/analysis"
	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
	"github.com/ZanzyTHEbar/stacking-predict/internal/model"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryEncoding      ErrorCategory = "encoding"
	CategoryPrediction    ErrorCategory = "prediction"
	CategoryExplanation   ErrorCategory = "explanation"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryConfiguration ErrorCategory = "configuration"
)

// AppError wraps errbuilder error with the category and HTTP status used
// by handlers.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Field      string        `json:"field,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s_ERROR] %s", strings.ToUpper(string(e.Category)), e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Response is the JSON body sent for an AppError
type Response struct {
	Error     string        `json:"error"`
	Category  ErrorCategory `json:"category"`
	Code      string        `json:"code"`
	Field     string        `json:"field,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Response renders the error for API clients
func (e *AppError) Response() Response {
	return Response{
		Error:     UserMessage(e),
		Category:  e.Category,
		Code:      fmt.Sprint(e.ErrBuilder.ErrCode()),
		Field:     e.Field,
		RequestID: e.RequestID,
		Timestamp: e.Timestamp,
	}
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

func withField(builder *errbuilder.ErrBuilder, key, field, reason string) *errbuilder.ErrBuilder {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set(key, errors.New(reason))
	if field != "" {
		errorMap.Set("field", errors.New(field))
	}
	return builder.WithDetails(errbuilder.NewErrDetails(errorMap))
}

// NewValidationError reports an input rejected at the form boundary
func NewValidationError(field, reason string, cause error) *AppError {
	msg := "Invalid request"
	if field != "" {
		msg = fmt.Sprintf("Invalid value for %s", field)
	}
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	builder = withField(builder, "validation_details", field, reason)

	appErr := NewAppError(builder, CategoryValidation, http.StatusBadRequest)
	appErr.Field = field
	return appErr
}

// NewEncodingError reports a value the feature encoder could not convert
func NewEncodingError(field, reason string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("Cannot encode %s", field))
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	builder = withField(builder, "encoding_details", field, reason)

	appErr := NewAppError(builder, CategoryEncoding, http.StatusUnprocessableEntity)
	appErr.Field = field
	return appErr
}

// NewPredictionError reports a model failure
func NewPredictionError(cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Prediction failed")
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return NewAppError(builder, CategoryPrediction, http.StatusInternalServerError)
}

// NewExplanationError reports an attribution failure. Handlers normally
// return it alongside a successful prediction rather than instead of one.
func NewExplanationError(method string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	if method != "" {
		errorMap.Set("method", errors.New(method))
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Explanation failed").
		WithDetails(errbuilder.NewErrDetails(errorMap))
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return NewAppError(builder, CategoryExplanation, http.StatusInternalServerError)
}

// NewRateLimitError creates a rate limit error using errbuilder
func NewRateLimitError(retryAfter string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("retry_after", errors.New(retryAfter))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("internal_details", errors.New(message))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	// Capture stack trace in development/debug mode
	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// NewConfigurationError creates a configuration error using errbuilder
func NewConfigurationError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("config_details", errors.New(message))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("Configuration error").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

// captureStackTrace captures a stack trace for debugging
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler is a Gin middleware that provides centralized error handling
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			appErr := ToAppError(c.Errors.Last().Err)
			appErr.RequestID = c.GetString("request_id")

			LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr.Response())
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()
		appErr.RequestID = c.GetString("request_id")

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
	})
}

// ToAppError converts any error to an AppError, mapping the pipeline's
// domain errors to their categories.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return NewValidationError(verr.Field, verr.Reason, err)
	}

	var encErr *analysis.EncodingError
	if errors.As(err, &encErr) {
		return NewEncodingError(encErr.Field, encErr.Reason, err)
	}

	var predErr *model.PredictionError
	if errors.As(err, &predErr) {
		return NewPredictionError(err)
	}

	var explErr *explain.ExplanationError
	if errors.As(err, &explErr) {
		return NewExplanationError(string(explErr.Method), err)
	}

	var ebErr *errbuilder.ErrBuilder
	if errors.As(err, &ebErr) {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
	)

	errorMsg := err.ErrBuilder.Msg
	switch err.Category {
	case CategoryValidation, CategoryEncoding, CategoryRateLimit:
		if details := err.ErrBuilder.Details; len(details.Errors) > 0 {
			logEntry.Warn(errorMsg, "details", details.Errors)
		} else {
			logEntry.Warn(errorMsg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	}

	// Log stack trace in development
	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// UserMessage is the single line shown to a person using the form
func UserMessage(err *AppError) string {
	switch err.Category {
	case CategoryValidation, CategoryEncoding:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			return cause.Error()
		}
		return err.ErrBuilder.Msg
	case CategoryRateLimit:
		return "Too many requests, please wait a moment and try again."
	default:
		return err.ErrBuilder.Msg + "."
	}
}
