package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that the targeted task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")

	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("not authenticated")
)

// ValidationError describes a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StoreError wraps a failure of the persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// SpawnError reports that a task was completed but its recurring successor
// could not be stored. The completion itself is already persisted.
type SpawnError struct {
	TaskID string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("task %s completed but successor was not created: %v", e.TaskID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
