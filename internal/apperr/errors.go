// Package apperr defines the error taxonomy this collector raises, trimmed
// to the categories a crawler actually hits: there is no inbound auth
// surface here, so auth/authz/TEE codes are dropped.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a category of failure, matching §7's error taxonomy.
type Code string

const (
	CodeTransport      Code = "TRANSPORT"      // network reset, timeout talking to the upstream RPC
	CodeDecode         Code = "DECODE"         // non-map or truncated RPC response
	CodeSession        Code = "SESSION"        // missing expected key, connection-interrupted server_error
	CodeDomain         Code = "DOMAIN"         // guild disbanded, no such profile — a dropped record, not a bug
	CodeConfiguration  Code = "CONFIGURATION"  // missing env var, malformed cron entry
	CodePipelineFatal  Code = "PIPELINE_FATAL" // empty account registry, cannot open database
)

// ServiceError is the error type every package in this module wraps
// upstream failures in before logging or recording them on a TaskLog.
type ServiceError struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// New builds a bare ServiceError with no wrapped cause.
func New(code Code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// Wrap attaches code and message to an existing error, preserving it as the
// unwrap chain's cause.
func Wrap(code Code, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, cause: cause}
}

// WithDetails returns a copy of e carrying additional structured context,
// useful for attaching a query id, endpoint, or viewer id before logging.
func (e *ServiceError) WithDetails(details map[string]any) *ServiceError {
	cp := *e
	cp.Details = details
	return &cp
}

// Transport, Decode, Session, Domain, Configuration and PipelineFatal are
// convenience constructors, one per Code, for building a ServiceError
// without naming the category twice.
func Transport(message string, cause error) *ServiceError {
	return Wrap(CodeTransport, message, cause)
}

func Decode(message string, cause error) *ServiceError {
	return Wrap(CodeDecode, message, cause)
}

func Session(message string, cause error) *ServiceError {
	return Wrap(CodeSession, message, cause)
}

func Domain(message string) *ServiceError {
	return New(CodeDomain, message)
}

func Configuration(message string, cause error) *ServiceError {
	return Wrap(CodeConfiguration, message, cause)
}

func PipelineFatal(message string, cause error) *ServiceError {
	return Wrap(CodePipelineFatal, message, cause)
}

// Is reports whether err is a ServiceError of the given code, unwrapping as
// needed.
func Is(err error, code Code) bool {
	var se *ServiceError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}
