// Package auth guards the control API with access keys read from keys.json
// in the settings directory. Without keys the API is open.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// KeysFileName is the access key file inside the settings directory.
const KeysFileName = "keys.json"

// Client is one API client allowed to drive the panel.
type Client struct {
	AccessKey string `json:"access_key"`
	// ReadOnly clients may only issue GET requests.
	ReadOnly bool `json:"read_only,omitempty"`
}

// Service checks access keys, reloading keys.json whenever it changes.
type Service struct {
	mu      sync.RWMutex
	dir     string
	clients map[string]Client
	watcher *fsnotify.Watcher
}

// NewService creates a service watching dir. An empty dir gives an open
// service that never watches anything.
func NewService(dir string) (*Service, error) {
	s := &Service{
		dir:     dir,
		clients: make(map[string]Client),
	}
	if dir == "" {
		return s, nil
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("auth: could not create fsnotify watcher", "err", err)
		return s, nil
	}
	s.watcher = watcher
	if err := watcher.Add(dir); err != nil {
		slog.Warn("auth: could not watch settings dir", "err", err)
	}
	go s.watchLoop(s.keysPath())
	return s, nil
}

func (s *Service) keysPath() string {
	return filepath.Join(s.dir, KeysFileName)
}

// Reload re-reads keys.json. A missing file clears every key.
func (s *Service) Reload() error {
	data, err := os.ReadFile(s.keysPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.clients = make(map[string]Client)
			s.mu.Unlock()
			return nil
		}
		return err
	}

	var clients map[string]Client
	if err := json.Unmarshal(data, &clients); err != nil {
		return err
	}

	s.mu.Lock()
	s.clients = clients
	s.mu.Unlock()
	slog.Debug("auth: reloaded keys", "count", len(clients))
	return nil
}

// IsOpenMode reports whether no client has a key, in which case every
// request is allowed.
func (s *Service) IsOpenMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.AccessKey != "" {
			return false
		}
	}
	return true
}

// Lookup returns the client owning key. Comparison is constant-time.
func (s *Service) Lookup(key string) (Client, bool) {
	if key == "" {
		return Client{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(c.AccessKey)) == 1 {
			return c, true
		}
	}
	return Client{}, false
}

// Close stops the file watcher.
func (s *Service) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *Service) watchLoop(keysPath string) {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name == keysPath && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove)) {
				if err := s.Reload(); err != nil {
					slog.Warn("auth: failed to reload keys", "err", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("auth: watcher error", "err", err)
		}
	}
}
