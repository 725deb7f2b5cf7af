package profiler

import "fmt"

// StorageError represents a failure reported by a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("memory", "sqlite", "elasticsearch", ...)
	Operation string // Operation that failed ("save", "load", "list", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// RecordError reports a persisted record that cannot be turned back into a tree.
type RecordError struct {
	ProfilerID string // Session the record belongs to
	Reason     string // What is wrong with it
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("invalid profiler record [id=%s]: %s", e.ProfilerID, e.Reason)
}
