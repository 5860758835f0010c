package blobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a goroutine-safe in-process Store. Unlike the prefix-based cloud
// backends it requires CreateContainer before Put.
type Memory struct {
	mu         sync.RWMutex
	containers map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{containers: make(map[string]map[string][]byte)}
}

func (m *Memory) CreateContainer(ctx context.Context, container string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("create container", err)
	}
	if err := ValidateContainer(container); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[container]; !ok {
		m.containers[container] = make(map[string][]byte)
	}
	return nil
}

func (m *Memory) Put(ctx context.Context, container, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable("put", err)
	}
	if err := validate(container, key); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	blobs, ok := m.containers[container]
	if !ok {
		return "", fmt.Errorf("put %s: container %w", container, ErrNotFound)
	}
	blobs[key] = append([]byte(nil), data...)
	return "memory://" + objectName(container, key), nil
}

func (m *Memory) Get(ctx context.Context, container, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", err)
	}
	if err := validate(container, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.containers[container][key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", objectName(container, key), ErrNotFound)
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Delete(ctx context.Context, container, key string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete", err)
	}
	if err := validate(container, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	blobs := m.containers[container]
	if _, ok := blobs[key]; !ok {
		return fmt.Errorf("delete %s: %w", objectName(container, key), ErrNotFound)
	}
	delete(blobs, key)
	return nil
}

func (m *Memory) DeleteContainer(ctx context.Context, container string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete container", err)
	}
	if err := ValidateContainer(container); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.containers, container)
	return nil
}

// HasContainer reports whether the container exists. It is an inspection hook
// for tests that drive a Memory store through other packages.
func (m *Memory) HasContainer(container string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.containers[container]
	return ok
}

// Keys lists the blob keys of a container in lexical order. Test hook, like
// HasContainer.
func (m *Memory) Keys(container string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.containers[container]))
	for k := range m.containers[container] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
