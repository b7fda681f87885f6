package kv

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// File keeps the whole map in memory and rewrites one JSON file on every change.
type File struct {
	Entries map[string]string `json:"entries"`
	Path    string            `json:"-"`
	mu      sync.RWMutex
	dirty   bool
}

// OpenFile loads path if it exists. A file that cannot be decoded is moved aside
// and the store starts empty.
func OpenFile(path string) (*File, error) {
	f := &File{
		Entries: make(map[string]string),
		Path:    path,
	}

	if _, err := os.Stat(path); err == nil {
		if err := f.load(); err != nil {
			log.Printf("Warning: could not decode %s, starting empty: %v", path, err)
			if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
				return nil, fmt.Errorf("failed to move corrupt store aside: %w", renameErr)
			}
			f.Entries = make(map[string]string)
		}
	}

	return f, nil
}

func (f *File) load() error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, f)
}

func (f *File) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.Entries[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, exists := f.Entries[key]; !exists || old != value {
		f.Entries[key] = value
		f.dirty = true
	}
	return f.saveLocked()
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.Entries[key]; exists {
		delete(f.Entries, key)
		f.dirty = true
	}
	return f.saveLocked()
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveLocked()
}

// saveLocked writes through a temp file so a crash never leaves a half-written store.
func (f *File) saveLocked() error {
	if !f.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace store: %w", err)
	}
	f.dirty = false
	return nil
}
