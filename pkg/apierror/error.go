package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the JSON body returned by the HTTP API for a failed call.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WithDetail(code int, message, detail string) *Error {
	return &Error{Code: code, Message: message, Detail: detail}
}

func NotFound(resource string) *Error {
	return New(http.StatusNotFound, fmt.Sprintf("%s not found", resource))
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// CallerInputError reports a request the caller got wrong: a bad namespace, name or image
// reference, a blocked namespace, or an unsupported HTTP method.
type CallerInputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *CallerInputError) Error() string {
	msg := "invalid input"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallerInputError) Unwrap() error { return e.Err }

// NewCallerInput returns a CallerInputError for field.
func NewCallerInput(field, reason string) *CallerInputError {
	return &CallerInputError{Field: field, Reason: reason}
}

// TransportError reports a failed HTTP exchange with the control plane (dial, DNS, TLS,
// timeout, truncated read). It is never retried by this module.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnexpectedVariantError reports a well-formed response that is not the operation's success
// shape, such as a 409 conflict Status object.
type UnexpectedVariantError struct {
	Operation string
	Status    int
	// Value is the parsed response body, nil when the body was empty.
	Value any
	// Reason and Message are filled from a platform Status object when the body is one.
	Reason  string
	Message string
}

func (e *UnexpectedVariantError) Error() string {
	msg := fmt.Sprintf("%s: expected success but got %d", e.Operation, e.Status)
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// MalformedResponseError reports a response body that could not be decoded at all.
type MalformedResponseError struct {
	Operation  string
	Status     int
	Diagnostic error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response (status %d): %v", e.Operation, e.Status, e.Diagnostic)
}

func (e *MalformedResponseError) Unwrap() error { return e.Diagnostic }

// IncompleteResponseError reports a body that ended before the decoder could decide on a shape.
// It points at a framing problem rather than bad data.
type IncompleteResponseError struct {
	Operation string
	Status    int
	Received  int
}

func (e *IncompleteResponseError) Error() string {
	return fmt.Sprintf("%s: incomplete response (status %d, %d bytes received)", e.Operation, e.Status, e.Received)
}

// HTTPStatus maps an error from the provisioning surface to the status the HTTP API answers with.
func HTTPStatus(err error) int {
	var (
		apiErr     *Error
		input      *CallerInputError
		unexpected *UnexpectedVariantError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &input):
		return http.StatusBadRequest
	case errors.As(err, &unexpected):
		if unexpected.Status >= 400 && unexpected.Status < 500 {
			return unexpected.Status
		}
		return http.StatusBadGateway
	case errors.As(err, new(*TransportError)),
		errors.As(err, new(*MalformedResponseError)),
		errors.As(err, new(*IncompleteResponseError)):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError converts any error into the API body shape.
func FromError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	code := HTTPStatus(err)
	return WithDetail(code, http.StatusText(code), err.Error())
}
