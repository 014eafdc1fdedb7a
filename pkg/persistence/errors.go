package persistence

import (
	"errors"
	"fmt"
)

var (
	ErrExecutionRequestNotFound = errors.New("execution request not found")
	ErrResourceNotFound         = errors.New("resource not found")
	ErrModelSchemaNotFound      = errors.New("model schema not found")
	ErrFieldSchemaNotFound      = errors.New("field schema not found")
	ErrTaskResultNotFound       = errors.New("task result not found")
	ErrUploadNotFound           = errors.New("upload not found")

	// ErrInvalidID is returned when an identifier cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid identifier")
)

// RepositoryError wraps a repository failure with the operation and record it concerned.
type RepositoryError struct {
	Op   string // Operation being performed (e.g. "GetByID", "Save")
	Kind string // Record kind (e.g. "execution_request")
	ID   string
	Err  error
}

func (e *RepositoryError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func (e *RepositoryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRepositoryError(op, kind, id string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Kind: kind, ID: id, Err: err}
}

func IsExecutionRequestNotFound(err error) bool {
	return errors.Is(err, ErrExecutionRequestNotFound)
}

func IsResourceNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound)
}

func IsModelSchemaNotFound(err error) bool {
	return errors.Is(err, ErrModelSchemaNotFound)
}

func IsFieldSchemaNotFound(err error) bool {
	return errors.Is(err, ErrFieldSchemaNotFound)
}

func IsUploadNotFound(err error) bool {
	return errors.Is(err, ErrUploadNotFound)
}
