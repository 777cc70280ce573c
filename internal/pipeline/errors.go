package pipeline

import (
	"errors"
	"fmt"
)

// ErrValidationFailed is the cause of a strict-mode run failure when the
// validation report did not pass.
var ErrValidationFailed = errors.New("validation failed")

// ConnectivityError means the database could not be reached. The run stops
// before anything is written.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("database connection failed: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// LoadError is a failure in one of the pipeline stages after the
// connection test. Err carries a stack trace from the point it was wrapped.
type LoadError struct {
	Stage Stage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
