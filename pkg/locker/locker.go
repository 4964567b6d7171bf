// Package locker provides per-session mutual exclusion so that one session is
// never driven by two workflow invocations at the same time.
package locker

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when the key is already held.
var ErrLocked = errors.New("lock already held")

// Locker hands out non-blocking exclusive locks by key.
type Locker interface {
	// Acquire takes the lock for key or fails with ErrLocked. The returned
	// function releases it and is safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
	Close() error
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an in-process locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

var _ Locker = (*Memory)(nil)

// Acquire implements Locker.
func (m *Memory) Acquire(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}

	m.held[key] = struct{}{}

	var once sync.Once

	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently locked.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.held[key]

	return ok
}

// Close implements Locker.
func (m *Memory) Close() error {
	return nil
}
