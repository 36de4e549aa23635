package services

import "errors"

type ErrorCode string

const (
	ErrorNetwork      ErrorCode = "network"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorValidation   ErrorCode = "validation"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnknown      ErrorCode = "unknown"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewNetworkError(msg string) error    { return &ServiceError{Code: ErrorNetwork, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}
func NewForbiddenError(msg string) error  { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error   { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewValidationError(msg string) error { return &ServiceError{Code: ErrorValidation, Message: msg} }
func NewConflictError(msg string) error   { return &ServiceError{Code: ErrorConflict, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsConflict reports whether err is a duplicate-key style conflict.
// Study-participant linking treats these as benign idempotent writes.
func IsConflict(err error) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == ErrorConflict
}

// ErrorReport is the structured shape handed to callers and rendered in
// API error bodies: the technical message for logs, a user-facing message
// from a fixed mapping, and the taxonomy code.
type ErrorReport struct {
	Technical string    `json:"technical"`
	User      string    `json:"user"`
	Code      ErrorCode `json:"code"`
}

var userMessages = map[ErrorCode]string{
	ErrorNetwork:      "Network connection issue. Please check your internet connection and try again.",
	ErrorUnauthorized: "Session expired. Please refresh the page and try again.",
	ErrorForbidden:    "You do not have access to this resource.",
	ErrorNotFound:     "Data not found. This may be a temporary issue.",
	ErrorValidation:   "The submitted data is invalid. Please check your input and try again.",
	ErrorConflict:     "This record already exists.",
}

const unknownUserMessage = "An unexpected error occurred. Please try again or contact support if the problem persists."

// Describe translates any error into an ErrorReport. Errors that are not
// ServiceErrors map to the unknown code.
func Describe(err error) ErrorReport {
	if err == nil {
		return ErrorReport{}
	}
	if se, ok := AsServiceError(err); ok {
		user := userMessages[se.Code]
		if user == "" {
			user = unknownUserMessage
		}
		return ErrorReport{Technical: se.Message, User: user, Code: se.Code}
	}
	return ErrorReport{Technical: err.Error(), User: unknownUserMessage, Code: ErrorUnknown}
}
