package persistence

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tempest-bridge/tempest-go/pkg/entry"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrEntryNotFound is returned when an entry ID is not in the store.
var ErrEntryNotFound = errors.New("entry not found")

// EntriesState is the on-disk layout of the state file.
type EntriesState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Entries holds every configured entry.
	Entries []*entry.Entry `json:"entries,omitempty"`
}

// EntryStore manages persistence of entries to a JSON file.
// It keeps an in-memory copy and rewrites the file on every change.
type EntryStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]*entry.Entry
	loaded  bool
}

// NewEntryStore creates a new entry store backed by path.
func NewEntryStore(path string) *EntryStore {
	return &EntryStore{
		path:    path,
		entries: make(map[string]*entry.Entry),
	}
}

// Load reads entries from disk. A missing file yields no entries.
func (s *EntryStore) Load() ([]*entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s.listLocked(), nil
}

// List returns all entries sorted by creation time.
func (s *EntryStore) List() []*entry.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Get returns the entry with the given ID.
func (s *EntryStore) Get(id string) (*entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

// Save adds or replaces an entry and persists the store.
func (s *EntryStore) Save(e *entry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	s.entries[e.ID] = e
	return s.writeLocked()
}

// Delete removes an entry and persists the store.
func (s *EntryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	if _, ok := s.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, id)
	return s.writeLocked()
}

// Clear removes the state file and forgets all entries.
func (s *EntryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry.Entry)
	s.loaded = true

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *EntryStore) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	state := &EntriesState{}
	if err := json.Unmarshal(data, state); err != nil {
		return err
	}

	for _, e := range state.Entries {
		if e == nil || e.ID == "" {
			continue
		}
		if e.Data == nil {
			e.Data = make(map[string]any)
		}
		s.entries[e.ID] = e
	}
	s.loaded = true
	return nil
}

func (s *EntryStore) writeLocked() error {
	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state := &EntriesState{
		Version: StateVersion,
		SavedAt: time.Now(),
		Entries: s.listLocked(),
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Entries may carry OAuth tokens.
	return os.WriteFile(s.path, data, 0600)
}

func (s *EntryStore) listLocked() []*entry.Entry {
	list := make([]*entry.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}
