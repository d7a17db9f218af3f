// Package kverr defines the error taxonomy shared by every key-value
// provider: each failure is tagged with the stage of the request in which it
// happened, so callers can tell a pool that could not hand out a connection
// apart from a store that rejected a command.
package kverr

import (
	"errors"
	"fmt"
)

// Stage identifies where in a request a failure happened.
type Stage string

const (
	// StageClientConstruction means the store target could not be parsed or a
	// client handle could not be built.
	StageClientConstruction Stage = "client_construction"

	// StageAcquisition means no connection became available in time, or
	// opening a fresh pooled connection failed.
	StageAcquisition Stage = "acquisition"

	// StageCommand means the store rejected or failed to execute a command.
	StageCommand Stage = "command_execution"

	// StageDecode means the store's reply could not be interpreted as the
	// expected type, including a missing key.
	StageDecode Stage = "type_decoding"
)

// description returns the human readable prefix used in error messages.
func (s Stage) description() string {
	switch s {
	case StageClientConstruction:
		return "error creating redis client"
	case StageAcquisition:
		return "could not get redis connection from pool"
	case StageCommand:
		return "error executing redis command"
	case StageDecode:
		return "error parsing string from redis result"
	default:
		return "redis error"
	}
}

// Error is a stage-tagged failure carrying the underlying cause.
type Error struct {
	Stage Stage
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s (%s): %v", e.Stage.description(), e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage.description(), e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New tags err with stage. If err already carries a stage, that stage is
// kept. A bare *Error is re-tagged in place with the new operation name;
// one buried under other wrapping is wrapped whole so that context stays
// in the message.
func New(stage Stage, op string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return &Error{Stage: e.Stage, Op: op, Err: e.Err}
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Stage: existing.Stage, Op: op, Err: err}
	}
	return &Error{Stage: stage, Op: op, Err: err}
}

// StageOf returns the stage of the first *Error in err's chain.
func StageOf(err error) (Stage, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage, true
	}
	return "", false
}

// IsStage reports whether err carries the given stage.
func IsStage(err error, stage Stage) bool {
	s, ok := StageOf(err)
	return ok && s == stage
}
