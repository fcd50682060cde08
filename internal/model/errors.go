package model

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every pipeline failure matches exactly one of these
// through errors.Is.
var (
	ErrQRNotFound          = errors.New("no decodable QR code in image")
	ErrInvalidAccessKey    = errors.New("invalid access key")
	ErrUnknownIssuingState = errors.New("unknown issuing state")
	ErrNetwork             = errors.New("network error")
	ErrUnparseableResponse = errors.New("unparseable response")
	ErrParse               = errors.New("parse error")
)

// Stage names a pipeline stage
type Stage string

const (
	StageDecode   Stage = "qr_decode"
	StageResolve  Stage = "access_key"
	StageUF       Stage = "uf"
	StageFetch    Stage = "fetch"
	StageClassify Stage = "classify"
	StageParse    Stage = "parse"
)

// StageError attaches the originating stage and the raw key to a failure.
// It never carries the fetched body.
type StageError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e *StageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s] key=%s: %v", e.Stage, e.Key, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with stage context
func NewStageError(stage Stage, key string, err error) *StageError {
	return &StageError{Stage: stage, Key: key, Err: err}
}

// ParseError represents parsing errors with source context
type ParseError struct {
	Source  DocumentKind
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Source, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Source, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is reports ParseError as ErrParse
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// NewParseError creates a new parse error
func NewParseError(source DocumentKind, field, message string, cause error) *ParseError {
	return &ParseError{
		Source:  source,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// NetworkError represents a failed request to a state endpoint
type NetworkError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("request to %s failed: status %d", e.URL, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Cause)
	default:
		return fmt.Sprintf("request to %s failed", e.URL)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Is reports NetworkError as ErrNetwork
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("validation failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, rule, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	}
}

// Kind returns a stable code for err, suitable for API responses
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQRNotFound):
		return "qr_not_found"
	case errors.Is(err, ErrInvalidAccessKey):
		return "invalid_access_key"
	case errors.Is(err, ErrUnknownIssuingState):
		return "unknown_issuing_state"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrUnparseableResponse):
		return "unparseable_response"
	case errors.Is(err, ErrParse):
		return "parse_error"
	default:
		return "internal_error"
	}
}
