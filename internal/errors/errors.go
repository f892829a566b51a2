// Package errors provides the error types shared by the flattening and
// reconciliation packages. Configuration errors are fatal and surface before
// any output is written; parse errors are recovered locally and logged.
package errors

import (
	"errors"
	"fmt"
)

// New is an alias for the standard library errors.New.
var New = errors.New

var (
	// ErrInvalidConfig is matched by every ConfigError.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMalformedJSON is matched by every ParseError.
	ErrMalformedJSON = errors.New("malformed JSON")

	// ErrEmptyResult marks a run that produced zero rows. It is reported,
	// never treated as a failure.
	ErrEmptyResult = errors.New("empty result")
)

// ConfigError reports a configuration that references something the data
// does not have, such as a missing column.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, msg)
	}
	return fmt.Sprintf("configuration error: %s", msg)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// MissingColumn returns a ConfigError for a column absent from a table.
func MissingColumn(component, table, column string) *ConfigError {
	return NewConfigError(component, fmt.Sprintf("column %q not found in %s table", column, table), nil)
}

// ParseStage names the decode pass that failed on a double-encoded cell.
type ParseStage string

const (
	// StageArray is the outer pass: the cell is not a JSON array.
	StageArray ParseStage = "array"
	// StageElement is the inner pass: an array element is not a JSON string.
	StageElement ParseStage = "element"
	// StageObject is the inner pass: an element's content is not a JSON object.
	StageObject ParseStage = "object"
)

// ParseError describes a malformed JSON cell. Index is the array element
// position for the element and object stages, -1 otherwise.
type ParseError struct {
	Row   int
	Stage ParseStage
	Index int
	Value string
	Err   error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("row %d: %s %d: %v", e.Row, e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("row %d: %s: %v", e.Row, e.Stage, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedJSON
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsParse reports whether err is (or wraps) a ParseError.
func IsParse(err error) bool {
	return errors.Is(err, ErrMalformedJSON)
}

// IsEmptyResult reports whether err is ErrEmptyResult.
func IsEmptyResult(err error) bool {
	return errors.Is(err, ErrEmptyResult)
}

// Is, As and Join re-export the standard library helpers so callers need a
// single errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)
