package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for broken storage invariants and configuration problems.
// Services wrap these; handlers map them to an APIError at the boundary.
var (
	ErrAlreadyAssociated   = errors.New("node version already has a first child")
	ErrDuplicateRevision   = errors.New("revision already archived for this version")
	ErrUnknownContentClass = errors.New("no registered kind for content class")
	ErrMissingContentType  = errors.New("required content type row is missing")
	ErrAlreadyExists       = errors.New("content type name already present")
	ErrInvalidReference    = errors.New("identifier is not a valid integer reference")
)

// Stable machine-readable codes carried on API responses.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeInvalidReference    = "INVALID_REFERENCE"
	CodeNotFound            = "NOT_FOUND"
	CodeLockedByOther       = "LOCKED_BY_OTHER"
	CodeAlreadyAssociated   = "ALREADY_ASSOCIATED"
	CodeDuplicateRevision   = "DUPLICATE_REVISION"
	CodeUnknownContentClass = "UNKNOWN_CONTENT_CLASS"
	CodeMissingContentType  = "MISSING_CONTENT_TYPE"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL"
)

// APIError is the error shape the HTTP layer responds with
type APIError struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"error"`
	Details  any    `json:"details,omitempty"`
	Internal error  `json:"-"`
}

// Error returns the error message
func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *APIError) Unwrap() error {
	return e.Internal
}

// WithDetails returns a copy carrying response details (e.g. a lock holder)
func (e *APIError) WithDetails(details any) *APIError {
	return &APIError{
		Status:   e.Status,
		Code:     e.Code,
		Message:  e.Message,
		Details:  details,
		Internal: e.Internal,
	}
}

func New(status int, code, message string, internal error) *APIError {
	return &APIError{
		Status:   status,
		Code:     code,
		Message:  message,
		Internal: internal,
	}
}

func BadRequest(message string, err error) *APIError {
	return New(http.StatusBadRequest, CodeBadRequest, message, err)
}

func InvalidReference(message string, err error) *APIError {
	return New(http.StatusBadRequest, CodeInvalidReference, message, err)
}

func Unauthorized(message string, err error) *APIError {
	return New(http.StatusUnauthorized, CodeUnauthorized, message, err)
}

func Forbidden(message string, err error) *APIError {
	return New(http.StatusForbidden, CodeForbidden, message, err)
}

func NotFound(message string, err error) *APIError {
	return New(http.StatusNotFound, CodeNotFound, message, err)
}

func Conflict(message string, err error) *APIError {
	return New(http.StatusConflict, CodeConflict, message, err)
}

func UnprocessableEntity(message string, err error) *APIError {
	return New(http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY", message, err)
}

func Internal(err error) *APIError {
	return New(http.StatusInternalServerError, CodeInternal, "Internal server error", err)
}

// NewValidationError turns a binding failure into an unprocessable-entity
// response listing the offending fields.
func NewValidationError(err error) *APIError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return BadRequest("Invalid request body", err)
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return UnprocessableEntity("Validation failed", err).WithDetails(details)
}
