// Package local defines the durable client-side store for the session credential.
package local

import (
	"sync"

	"github.com/sufyanAbbasi/efflux/internal/models"
)

// SessionStore persists the operator's session across peer switches and
// restarts. There is one session per client, so the store holds one record.
type SessionStore interface {
	// Init opens/creates the underlying store.
	Init() error
	// Close flushes and closes the store.
	Close() error
	// Load returns the stored session, or ok=false if none was saved.
	Load() (info models.LoginResponse, ok bool, err error)
	// Save overwrites the stored session.
	Save(info models.LoginResponse) error
	// Clear forgets the stored session.
	Clear() error
}

// MemoryStore is a SessionStore that lives only as long as the process.
type MemoryStore struct {
	mu   sync.RWMutex
	info models.LoginResponse
	ok   bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Init() error  { return nil }
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Load() (models.LoginResponse, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info, m.ok, nil
}

func (m *MemoryStore) Save(info models.LoginResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info, m.ok = info, true
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info, m.ok = models.LoginResponse{}, false
	return nil
}
