// Package blobstore stores opaque byte blobs addressed by (container, key).
//
// A container is the namespace of a single project. Writes to an existing key
// replace it; there is no versioning and no concurrency token.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("blob not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrInvalidName        = errors.New("invalid container or blob name")
)

// Store is implemented by every blob backend.
type Store interface {
	// CreateContainer creates the container if it does not exist yet.
	CreateContainer(ctx context.Context, container string) error
	// Put writes data under key and returns a backend-specific location.
	Put(ctx context.Context, container, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, container, key string) ([]byte, error)
	// Delete removes a single blob. A missing blob yields ErrNotFound, which
	// callers may ignore.
	Delete(ctx context.Context, container, key string) error
	// DeleteContainer removes every blob in the container and the container
	// itself. A missing container is not an error.
	DeleteContainer(ctx context.Context, container string) error
}

// ValidateContainer rejects empty names and names that could escape the
// container prefix.
func ValidateContainer(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("%w: container %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateKey rejects empty, absolute and parent-relative keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: key %q", ErrInvalidName, key)
		}
	}
	return nil
}

func validate(container, key string) error {
	if err := ValidateContainer(container); err != nil {
		return err
	}
	return ValidateKey(key)
}

// objectName is the flat object name used by prefix-based backends.
func objectName(container, key string) string {
	return container + "/" + key
}

// markerName is a sibling object that records container existence. It lives
// outside the container prefix so it can never collide with a blob key.
func markerName(container string) string {
	return container + ".container"
}

// unavailable wraps a backend failure as ErrStorageUnavailable, keeping the
// underlying message.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}

// fromContext maps context expiry to ErrStorageUnavailable.
func fromContext(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return unavailable(op, err)
	}
	return nil
}
