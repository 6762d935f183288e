package apierrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Kind classifies a failure for the HTTP layer.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindRateLimited
	KindInternal
)

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error type every handler answers with.
type Error struct {
	Kind    Kind
	Message string
	status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error, honoring overrides.
func (e *Error) Status() int {
	if e.status != 0 {
		return e.status
	}
	return e.Kind.Status()
}

// WithStatus overrides the status code derived from the kind.
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.status = status
	return &cp
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error { return New(KindValidation, message) }
func Unauthenticated(message string) *Error { return New(KindAuthentication, message) }
func Forbidden(message string) *Error { return New(KindAuthorization, message) }
func NotFound(message string) *Error { return New(KindNotFound, message) }
func Conflict(message string) *Error { return New(KindConflict, message) }

// Internal wraps an unexpected store or connection failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Server error", Err: err}
}

// Predefined errors
var (
	ErrMissingFields      = Validation("Missing fields")
	ErrInvalidID          = Validation("Invalid id")
	ErrInvalidToken       = Unauthenticated("Invalid token")
	ErrMissingToken       = Unauthenticated("Missing token")
	ErrInvalidCredentials = Unauthenticated("Invalid credentials")
	ErrForbidden          = Forbidden("Forbidden")
	ErrNotFound           = NotFound("Not found")
)

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// Respond writes err as `{ "message": ... }` and aborts the chain.
// Errors that are not *Error are logged and surfaced as a 500.
func Respond(c *gin.Context, log *zap.Logger, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err)
	}
	if apiErr.Kind == KindInternal && log != nil {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(apiErr.Status(), gin.H{"message": apiErr.Message})
}

// RespondWithExtra is Respond for errors that carry extra fields in the body.
func RespondWithExtra(c *gin.Context, err *Error, extra gin.H) {
	body := gin.H{"message": err.Message}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(err.Status(), body)
}
