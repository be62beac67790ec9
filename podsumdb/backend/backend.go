package backend

import (
	"context"
	"io"
	"path"

	"github.com/pkg/errors"
)

var (
	// ErrDoesNotExist is returned when a key is not found in the backend.
	ErrDoesNotExist = errors.New("does not exist")
	// ErrSizeMismatch is returned when a fixed-length write produces a body
	// whose byte count differs from the declared content length.
	ErrSizeMismatch = errors.New("body does not match declared content length")
	ErrEmptyKey     = errors.New("empty object key")
)

// KeyPath is an ordered set of strings that govern where data is read from
// and written to in the backend.
type KeyPath []string

// ObjectInfo is the metadata a backend reports for a stored object.
type ObjectInfo struct {
	ETag string
	Size int64
}

// RawReader lists and reads opaque byte streams from the backend.
type RawReader interface {
	// List returns the names of all objects directly under keypath. The
	// listing is complete: callers treat it as covering every matching key.
	List(ctx context.Context, keypath KeyPath) ([]string, error)
	// Read returns a stream over the named object and its metadata, or
	// ErrDoesNotExist for unknown keys. The caller owns the ReadCloser.
	Read(ctx context.Context, name string, keypath KeyPath) (io.ReadCloser, ObjectInfo, error)
}

// RawWriter writes opaque byte streams to the backend.
type RawWriter interface {
	// Write persists data under keypath. A non-negative size declares an
	// exact content length and the write fails with ErrSizeMismatch when the
	// stream yields a different byte count. A negative size means unknown.
	Write(ctx context.Context, name string, keypath KeyPath, data io.Reader, size int64) (ObjectInfo, error)
}

// ObjectFileName returns the fully qualified key of an object.
func ObjectFileName(keypath KeyPath, name string) string {
	return path.Join(path.Join(keypath...), name)
}

// KeyPathWithPrefix returns a keypath with a prefix string prepended, if the
// prefix is not empty.
func KeyPathWithPrefix(keypath KeyPath, prefix string) KeyPath {
	if prefix == "" {
		return keypath
	}
	return append(KeyPath{prefix}, keypath...)
}

type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// RetryableError marks err as a transient storage fault that is safe to retry.
func RetryableError(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// IsRetryable reports whether a backend classified err as transient. Durable
// faults (auth, not-found, precondition) are never marked retryable.
func IsRetryable(err error) bool {
	re := retryableError{}
	return errors.As(err, &re)
}
