package blobstore

import (
	"context"
	"time"
)

// timeoutStore bounds every call of the wrapped Store with a deadline.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps s so that each operation runs under its own deadline and
// reports ErrStorageUnavailable when the deadline expires. A non-positive
// timeout returns s unchanged.
func WithTimeout(s Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: timeout}
}

func (t *timeoutStore) CreateContainer(ctx context.Context, container string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.check(ctx, "create container", t.next.CreateContainer(ctx, container))
}

func (t *timeoutStore) Put(ctx context.Context, container, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	loc, err := t.next.Put(ctx, container, key, data, contentType)
	return loc, t.check(ctx, "put", err)
}

func (t *timeoutStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	b, err := t.next.Get(ctx, container, key)
	return b, t.check(ctx, "get", err)
}

func (t *timeoutStore) Delete(ctx context.Context, container, key string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.check(ctx, "delete", t.next.Delete(ctx, container, key))
}

func (t *timeoutStore) DeleteContainer(ctx context.Context, container string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.check(ctx, "delete container", t.next.DeleteContainer(ctx, container))
}

func (t *timeoutStore) check(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if mapped := fromContext(op, ctxErr); mapped != nil {
			return mapped
		}
	}
	return err
}
