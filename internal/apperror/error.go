package apperror

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// AppError is the error type returned across context boundaries. Two AppErrors are
// equal under errors.Is when their codes match.
type AppError struct {
	Code       Code      `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"statusCode"`
	Context    string    `json:"context,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	cause      error
}

func (e *AppError) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Code == t.Code
}

// Body is the JSON shape of an error in API responses.
type Body struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Context   string `json:"context,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ToResponse returns the API response envelope {"error": {...}}. The cause stays out
// of responses; it is only logged.
func (e *AppError) ToResponse() map[string]Body {
	b := Body{Code: e.Code, Message: e.Message, Context: e.Context}
	if !e.Timestamp.IsZero() {
		b.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return map[string]Body{"error": b}
}

// Option configures an AppError built by New.
type Option func(*AppError)

// WithMessage overrides the default message for the code.
func WithMessage(message string) Option {
	return func(e *AppError) { e.Message = message }
}

// WithContext attaches the identifier or detail the error is about.
func WithContext(context string) Option {
	return func(e *AppError) { e.Context = context }
}

// WithStatusCode overrides the default HTTP status for the code.
func WithStatusCode(status int) Option {
	return func(e *AppError) { e.StatusCode = status }
}

// WithCause wraps an underlying error.
func WithCause(cause error) Option {
	return func(e *AppError) { e.cause = cause }
}

// New creates an AppError with the code's default message and status.
func New(code Code, opts ...Option) *AppError {
	err := Sentinel(code)
	err.Timestamp = time.Now()
	for _, opt := range opts {
		opt(err)
	}
	return err
}

// Sentinel builds a comparable error value with no timestamp, for errors.Is.
func Sentinel(code Code) *AppError {
	msg := messages[code]
	if msg == "" {
		msg = string(code)
	}
	return &AppError{Code: code, Message: msg, StatusCode: StatusFor(code)}
}

func NotFound(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusNotFound))
}

func Validation(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusBadRequest))
}

func Conflict(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusConflict))
}

// Wrap returns err unchanged when it already is an AppError, filling in an empty
// context. Anything else becomes an internal error with code.
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Context == "" {
			appErr.Context = context
		}
		return appErr
	}
	return New(code, WithContext(context), WithCause(err), WithStatusCode(http.StatusInternalServerError))
}

// GetCode returns err's code, or CodeUnknownError for non-AppErrors.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

var statuses = map[Code]int{
	CodeServiceTimeout:            http.StatusServiceUnavailable,
	CodeServiceUnavailable:        http.StatusServiceUnavailable,
	CodeGasPriceUnavailable:       http.StatusServiceUnavailable,
	CodePriceUnavailable:          http.StatusServiceUnavailable,
	CodeCircuitOpen:               http.StatusServiceUnavailable,
	CodeExecutionTimeout:          http.StatusGatewayTimeout,
	CodeOpportunityAlreadyClaimed: http.StatusConflict,
	CodeOpportunityNotClaimed:     http.StatusConflict,
	CodeExecutionNotCancellable:   http.StatusConflict,
	CodeLedgerTerminalEntry:       http.StatusConflict,
	CodeLaneBusy:                  http.StatusConflict,
	CodeOpportunityExpired:        http.StatusGone,
	CodeSlippageExceeded:          http.StatusUnprocessableEntity,
	CodeStaleData:                 http.StatusUnprocessableEntity,
	CodeRateLimitExceeded:         http.StatusTooManyRequests,
	CodeExecutorBusy:              http.StatusTooManyRequests,
	CodeRequiredField:             http.StatusBadRequest,
	CodeValidationError:           http.StatusBadRequest,
}

// StatusFor returns the default HTTP status for code. Codes not listed fall back on
// their suffix: *_NOT_FOUND is 404, INVALID_* is 400 and *_CONNECTION_* is 503.
func StatusFor(code Code) int {
	if s, ok := statuses[code]; ok {
		return s
	}
	c := string(code)
	switch {
	case strings.HasSuffix(c, "NOT_FOUND"):
		return http.StatusNotFound
	case strings.HasPrefix(c, "INVALID"):
		return http.StatusBadRequest
	case strings.Contains(c, "CONNECTION"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

