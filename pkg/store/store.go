// Package store defines the durable key/value blob store every engine component writes through.
//
// The backing storage is assumed to be object-storage-like: records are
// independent blobs addressed by key, there are no cross-key transactions,
// and the only concurrency primitive is a per-key precondition on writes.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// ETag identifies one version of a stored value.
type ETag string

// Object is a stored value together with its version.
type Object struct {
	Key   string
	Value []byte
	ETag  ETag
}

// Store is the durable store adapter.
type Store interface {
	// Get returns the object at key or ErrNotFound.
	Get(ctx context.Context, key string) (*Object, error)

	// Put writes value at key. Preconditions make the write conditional;
	// a failed precondition returns ErrConflict and leaves the key untouched.
	Put(ctx context.Context, key string, value []byte, opts ...PutOption) (ETag, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListByPrefix returns every key starting with prefix in lexical order.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// PutOptions holds the preconditions of a Put.
type PutOptions struct {
	IfMatch     ETag
	IfNotExists bool
}

type PutOption func(*PutOptions)

// IfMatch makes the write succeed only if the current version is etag.
func IfMatch(etag ETag) PutOption {
	return func(o *PutOptions) {
		o.IfMatch = etag
	}
}

// IfNotExists makes the write succeed only if key does not exist yet.
func IfNotExists() PutOption {
	return func(o *PutOptions) {
		o.IfNotExists = true
	}
}

// ApplyPutOptions folds opts into a PutOptions value.
func ApplyPutOptions(opts ...PutOption) PutOptions {
	var options PutOptions

	for _, opt := range opts {
		opt(&options)
	}

	return options
}

// Check evaluates the preconditions against the current version of a key.
// exists is false when the key is absent.
func (o PutOptions) Check(current ETag, exists bool) error {
	if o.IfNotExists && exists {
		return ErrConflict
	}

	if o.IfMatch != "" && (!exists || current != o.IfMatch) {
		return ErrConflict
	}

	return nil
}

// ComputeETag derives the version of a value from its content.
func ComputeETag(value []byte) ETag {
	sum := sha256.Sum256(value)

	return ETag(hex.EncodeToString(sum[:16]))
}
