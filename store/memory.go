package store

import (
	"context"
	"sync"

	"github.com/chimerakang/changedesk"
)

// Memory keeps the token for the process lifetime only.
type Memory struct {
	mu    sync.RWMutex
	token string
	set   bool
}

var _ changedesk.TokenStore = (*Memory)(nil)

// NewMemory builds an in-memory token store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.set, nil
}

func (m *Memory) Set(_ context.Context, token string) error {
	m.mu.Lock()
	m.token, m.set = token, true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context) error {
	m.mu.Lock()
	m.token, m.set = "", false
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
