package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/micro-nova/panel-go/internal/models"
)

// SettingsFileName is the overlay settings file inside the settings directory.
const SettingsFileName = "overlay.json"

// saveDelay coalesces bursts of slider updates into one write.
const saveDelay = 500 * time.Millisecond

// JSONStore keeps overlay settings in SettingsFileName. Saves are delayed by
// saveDelay and only the newest settings are written.
type JSONStore struct {
	path string

	mu      sync.Mutex
	timer   *time.Timer
	pending *models.Settings

	// serializes file writes between the timer and Flush
	writeMu sync.Mutex
}

// NewJSONStore returns a store for dir/overlay.json. The directory is created
// on the first write.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{path: filepath.Join(dir, SettingsFileName)}
}

func (s *JSONStore) Path() string { return s.path }

// Load returns the saved settings, migrated to the current limits. A missing
// or unreadable file yields the defaults.
func (s *JSONStore) Load() (*models.Settings, error) {
	st := models.DefaultSettings()
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &st, nil
	case err != nil:
		return nil, fmt.Errorf("reading overlay settings: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("config: overlay settings corrupt, using defaults", "path", s.path, "err", err)
		st = models.DefaultSettings()
		return &st, nil
	}
	migrateSettings(&st)
	return &st, nil
}

// Save records st and (re)arms the write timer.
func (s *JSONStore) Save(st *models.Settings) error {
	cp := *st
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &cp
	if s.timer == nil {
		s.timer = time.AfterFunc(saveDelay, s.writePending)
	} else {
		s.timer.Reset(saveDelay)
	}
	return nil
}

// Flush writes pending settings now.
func (s *JSONStore) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	return s.flushPending()
}

func (s *JSONStore) writePending() {
	if err := s.flushPending(); err != nil {
		slog.Error("config: writing overlay settings failed", "path", s.path, "err", err)
	}
}

func (s *JSONStore) flushPending() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	st := s.pending
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	if err := s.write(st); err != nil {
		return err
	}

	s.mu.Lock()
	if s.pending == st {
		s.pending = nil
	}
	s.mu.Unlock()
	return nil
}

// write replaces the file through a rename so readers never see half a file.
func (s *JSONStore) write(st *models.Settings) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ Store = (*JSONStore)(nil)
