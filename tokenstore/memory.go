package tokenstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

var (
	_ Backend = (*Memory)(nil)
	_ Purger  = (*Memory)(nil)
)

// Memory is a thread-safe in-memory backend. It lives as long as the process.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
	}
}

// Get retrieves a value by key
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, fmt.Errorf("key is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

// Set creates or updates a value
func (m *Memory) Set(_ context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// DeletePrefix removes every key in a namespace.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			delete(m.values, k)
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
