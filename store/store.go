// Package store keeps session records as JSON values in a key-value store.
// Failures here are never fatal for reading session, callers turn them into
// advisory messages.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/maruel/natural"
)

var (
	// ErrNotFound is returned by Get for absent keys.
	ErrNotFound = errors.New("record not found")
	// ErrQuota is returned when store has no space left for the record.
	ErrQuota = errors.New("storage quota exceeded")
	// ErrClosed is returned when store is used after Close.
	ErrClosed = errors.New("store is closed")
)

// KV is a minimal string keyed byte store.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Keys returns all keys with prefix in natural order.
	Keys(prefix string) ([]string, error)
	Close() error
}

// LoadJSON decodes record stored under key. Second return value is false when
// there is no such record.
func LoadJSON[T any](kv KV, key string) (T, bool, error) {
	var v T
	data, err := kv.Get(key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("unable to load %q: %w", key, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("unable to decode %q: %w", key, err)
	}
	return v, true, nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to encode %q: %w", key, err)
	}
	if err := kv.Put(key, data); err != nil {
		return fmt.Errorf("unable to save %q: %w", key, err)
	}
	return nil
}

func sortKeys(keys []string) []string {
	sort.Sort(natural.StringSlice(keys))
	return keys
}

// Memory is in-memory store with optional quota emulating browser storage
// limits. Zero quota means unlimited.
type Memory struct {
	mu      sync.Mutex
	records map[string][]byte
	quota   int
	used    int
	closed  bool
}

func NewMemory(quota int) *Memory {
	return &Memory{records: make(map[string][]byte), quota: quota}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	used := m.used - m.size(key) + len(key) + len(value)
	if m.quota > 0 && used > m.quota {
		return ErrQuota
	}
	m.records[key] = append([]byte(nil), value...)
	m.used = used
	return nil
}

func (m *Memory) size(key string) int {
	if v, ok := m.records[key]; ok {
		return len(key) + len(v)
	}
	return 0
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.used -= m.size(key)
	delete(m.records, key)
	return nil
}

func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return sortKeys(keys), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
