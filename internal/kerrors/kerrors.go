// Package kerrors defines the core error taxonomy and the canonical JSON
// failure envelope shared by every CLI command and background service.
package kerrors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code is one of the closed set of error codes the core ever raises.
type Code string

const (
	UsageError        Code = "USAGE_ERROR"
	GitPreflightError Code = "GIT_PREFLIGHT_FAILED"
	ValidationError   Code = "VALIDATION_ERROR"
	VCSError          Code = "VCS_ERROR"
	NetworkError      Code = "NETWORK_ERROR"
	AuthError         Code = "AUTH_ERROR"
	WPFailedError     Code = "WP_FAILED"
)

// Error is the structured error every outer boundary (CLI command,
// scheduler task, sync pipeline) translates a raw error into before it
// reaches a user or an envelope encoder. Pure computational layers
// (reducer, validator, clock) keep raising plain wrapped errors; only the
// outer boundary wraps them in an *Error.
type Error struct {
	Code    Code
	Message string
	Data    map[string]any
	Cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithData attaches remediation/diagnostic data and returns the receiver
// for chaining.
func (e *Error) WithData(key string, value any) *Error {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// As is a narrow convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the Code of err if it (or something it wraps) is an
// *Error, or "" otherwise.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Envelope is the canonical JSON shape every CLI command writes when run
// with --json, on failure and on success.
type Envelope struct {
	Success         bool           `json:"success"`
	ErrorCode        Code           `json:"error_code,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
	Command          string         `json:"command"`
	Timestamp        string         `json:"timestamp"`
	CorrelationID    string         `json:"correlation_id,omitempty"`
	ContractVersion  string         `json:"contract_version"`
}

// ContractVersion is the CLI JSON envelope's stable contract version.
const ContractVersion = "1.0"

// FailureEnvelope builds the canonical failure envelope for err.
func FailureEnvelope(command string, now func() string, correlationID string, err error) Envelope {
	data := map[string]any{"message": err.Error()}
	code := Code("")
	if e, ok := As(err); ok {
		code = e.Code
		data["message"] = e.Message
		for k, v := range e.Data {
			data[k] = v
		}
	}
	if code == "" {
		code = ValidationError
	}
	return Envelope{
		Success:         false,
		ErrorCode:       code,
		Data:            data,
		Command:         command,
		Timestamp:       now(),
		CorrelationID:   correlationID,
		ContractVersion: ContractVersion,
	}
}

// SuccessEnvelope builds the canonical success envelope.
func SuccessEnvelope(command string, now func() string, correlationID string, data map[string]any) Envelope {
	return Envelope{
		Success:         true,
		Data:            data,
		Command:         command,
		Timestamp:       now(),
		CorrelationID:   correlationID,
		ContractVersion: ContractVersion,
	}
}

// Encode marshals the envelope as indented JSON, matching the stable
// machine-readable framing every --json command emits.
func Encode(e Envelope) ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}
