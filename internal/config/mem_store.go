package config

import (
	"sync"

	"github.com/micro-nova/panel-go/internal/models"
)

// MemStore is an in-memory Store for tests that never writes to disk.
type MemStore struct {
	mu    sync.Mutex
	st    *models.Settings
	saves int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load returns a copy of the stored settings, or DefaultSettings if none
// have been saved yet.
func (m *MemStore) Load() (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		def := models.DefaultSettings()
		return &def, nil
	}
	cp := *m.st
	return &cp, nil
}

// Save stores a copy of st.
func (m *MemStore) Save(st *models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	m.st = &cp
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Path returns ":memory:".
func (m *MemStore) Path() string { return ":memory:" }

// Flush is a no-op.
func (m *MemStore) Flush() error { return nil }

var _ Store = (*MemStore)(nil)
