// Package localstore persists each identity's collections in a kv.Store.
//
// Reads never fail: anything missing or undecodable comes back as the collection's
// empty default. Writes are fire-and-forget; failures are logged, not returned.
package localstore

import (
	"encoding/json"
	"log"
	"os"

	"github.com/harrisonrobin/kotonote/pkg/kv"
	"github.com/harrisonrobin/kotonote/pkg/model"
)

type Store struct {
	kv     kv.Store
	logger *log.Logger
}

func New(store kv.Store, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[localstore] ", log.LstdFlags)
	}
	return &Store{kv: store, logger: logger}
}

// Migrate copies pre-v2 keys for identity forward and removes them. Keys that already
// exist in the current layout are left alone, so calling it repeatedly is harmless.
// It returns the number of keys moved.
func (s *Store) Migrate(identity string) int {
	moved := 0
	for _, c := range collections {
		current := Key(c, identity)
		if _, ok := s.kv.Get(current); ok {
			continue
		}
		old := legacyKey(c, identity)
		value, ok := s.kv.Get(old)
		if !ok {
			continue
		}
		if err := s.kv.Set(current, value); err != nil {
			s.logger.Printf("Warning: could not migrate %s: %v", old, err)
			continue
		}
		if err := s.kv.Remove(old); err != nil {
			s.logger.Printf("Warning: migrated %s but could not remove it: %v", old, err)
		}
		moved++
	}
	if moved > 0 {
		s.logger.Printf("Migrated %d legacy keys for %q", moved, identity)
	}
	return moved
}

func (s *Store) LoadTasks(identity string) []model.Task {
	return load(s, Key(Tasks, identity), func() []model.Task { return []model.Task{} })
}

func (s *Store) LoadDashboard(identity string) model.Dashboard {
	d := load(s, Key(Dashboard, identity), func() model.Dashboard { return model.Dashboard{} })
	return d.Normalize()
}

func (s *Store) LoadLinks(identity string) model.LinkBook {
	b := load(s, Key(Links, identity), func() model.LinkBook { return model.LinkBook{} })
	if b.Categories == nil {
		b.Categories = []model.LinkCategory{}
	}
	return b
}

// Load reads all three collections for identity.
func (s *Store) Load(identity string) model.Snapshot {
	return model.Snapshot{
		Tasks:     s.LoadTasks(identity),
		Dashboard: s.LoadDashboard(identity),
		Links:     s.LoadLinks(identity),
	}
}

func (s *Store) SaveTasks(identity string, tasks []model.Task) {
	s.save(Key(Tasks, identity), tasks)
}

func (s *Store) SaveDashboard(identity string, d model.Dashboard) {
	s.save(Key(Dashboard, identity), d.Normalize())
}

func (s *Store) SaveLinks(identity string, b model.LinkBook) {
	s.save(Key(Links, identity), b)
}

func (s *Store) Save(identity string, snap model.Snapshot) {
	s.SaveTasks(identity, snap.Tasks)
	s.SaveDashboard(identity, snap.Dashboard)
	s.SaveLinks(identity, snap.Links)
}

// Handle returns the cached remote spreadsheet id for identity.
func (s *Store) Handle(identity string) (string, bool) {
	id, ok := s.kv.Get(Key(sheetHandle, identity))
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (s *Store) SetHandle(identity, id string) {
	if err := s.kv.Set(Key(sheetHandle, identity), id); err != nil {
		s.logger.Printf("Warning: could not cache spreadsheet id: %v", err)
	}
}

func (s *Store) ClearHandle(identity string) {
	if err := s.kv.Remove(Key(sheetHandle, identity)); err != nil {
		s.logger.Printf("Warning: could not clear spreadsheet id: %v", err)
	}
}

func load[T any](s *Store, key string, empty func() T) T {
	raw, ok := s.kv.Get(key)
	if !ok || raw == "" || raw == "null" {
		return empty()
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Printf("Warning: ignoring unreadable %s: %v", key, err)
		return empty()
	}
	return v
}

func (s *Store) save(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("Warning: could not encode %s: %v", key, err)
		return
	}
	if err := s.kv.Set(key, string(b)); err != nil {
		s.logger.Printf("Warning: could not persist %s: %v", key, err)
	}
}
