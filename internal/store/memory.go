package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process KV with fault injection.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	data     map[string]string
	failing  error
	failNext []error
	writes   int
}

var _ KV = (*Memory)(nil)

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// SetFailing makes every subsequent operation return err until called with nil.
func (m *Memory) SetFailing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = err
}

// FailNext makes the next operation return err. Calls stack in FIFO order.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, err)
}

// Writes returns the number of successful Set/Remove/MultiRemove calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Get implements KV.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faultLocked(); err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements KV.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faultLocked(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	m.data[key] = value
	m.writes++
	return nil
}

// Remove implements KV.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faultLocked(); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	delete(m.data, key)
	m.writes++
	return nil
}

// MultiRemove implements KV.
func (m *Memory) MultiRemove(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faultLocked(); err != nil {
		return fmt.Errorf("multi remove: %w", err)
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	m.writes++
	return nil
}

// Keys implements KV.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faultLocked(); err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	keys := []string{}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) faultLocked() error {
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return err
	}
	return m.failing
}
