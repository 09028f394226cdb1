package models

import (
	"errors"
	"fmt"
)

// ErrVersionExists is returned when publishing to an immutable version tag
// that already holds a definition.
var ErrVersionExists = errors.New("version already exists")

// ErrMalformedVersion is returned for tags that do not match the semantic
// version pattern.
var ErrMalformedVersion = errors.New("malformed version tag")

// ValidationError reports a structurally invalid pipeline definition.
type ValidationError struct {
	Pipeline string
	Msg      string
}

func (e *ValidationError) Error() string {
	if e.Pipeline == "" {
		return "invalid pipeline: " + e.Msg
	}
	return fmt.Sprintf("invalid pipeline %q: %s", e.Pipeline, e.Msg)
}

// NotFoundError reports an unknown pipeline name or version ref.
type NotFoundError struct {
	Name string
	Ref  string
}

func (e *NotFoundError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("pipeline %q not found", e.Name)
	}
	return fmt.Sprintf("pipeline %q ref %q not found", e.Name, e.Ref)
}

// MissingParameterError reports a required parameter that was neither bound
// by the caller nor covered by a schema default.
type MissingParameterError struct {
	Pipeline string
	Param    string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("pipeline %q: required parameter %q is not bound", e.Pipeline, e.Param)
}

// UnknownParameterError reports a binding key absent from the schema.
type UnknownParameterError struct {
	Pipeline string
	Param    string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("pipeline %q: unknown parameter %q", e.Pipeline, e.Param)
}

// TypeMismatchError reports a binding whose value does not match the declared
// parameter type.
type TypeMismatchError struct {
	Pipeline string
	Param    string
	Want     ParamType
	Got      interface{}
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("pipeline %q: parameter %q expects %s, got %T", e.Pipeline, e.Param, e.Want, e.Got)
}
