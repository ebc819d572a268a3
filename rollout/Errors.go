package rollout

import "errors"

// BufferError implements errors unique to assembling and
// post-processing a rollout buffer.
type BufferError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *BufferError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause of a BufferError
func (e *BufferError) Unwrap() error {
	return e.Err
}

var errInvalidConfig error = errors.New("invalid configuration")

var errShapeMismatch error = errors.New("shape mismatch")

// IsConfigurationError returns whether or not an error reports an
// invalid hyperparameter or buffer dimension. Such errors are fatal
// and are detected before any collection or computation begins.
func IsConfigurationError(err error) bool {
	return errors.Is(err, errInvalidConfig)
}

// IsShapeMismatch returns whether or not an error reports buffer or
// batch fields whose shapes disagree with one another or with the
// advertised buffer dimensions. Such errors indicate a collaborator
// contract violation and are not retried.
func IsShapeMismatch(err error) bool {
	return errors.Is(err, errShapeMismatch)
}
