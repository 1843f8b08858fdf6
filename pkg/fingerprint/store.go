// Package fingerprint persists per-file change-detection records: the
// whole-file content hash and the chunk ids currently indexed for the
// file. The index manager is the only mutator. When a fingerprint and
// the vector store disagree, the file is treated as changed and fully
// re-indexed.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Entry is the fingerprint of one source file.
type Entry struct {
	ContentHash string    `json:"content_hash"`
	ChunkIDs    []string  `json:"chunk_ids"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// Store is a JSON-file backed fingerprint map keyed by source path
// (workspace-relative).
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// Load reads the fingerprint file at path. A missing file yields an
// empty store; a corrupt file is an error (the caller should reindex
// from scratch rather than trust partial state).
func Load(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint store: %w", err)
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("failed to parse fingerprint store %s: %w", path, err)
	}
	return s, nil
}

// Get returns the fingerprint for a source path.
func (s *Store) Get(sourcePath string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sourcePath]
	return e, ok
}

// Put records a fingerprint and persists immediately.
func (s *Store) Put(sourcePath string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sourcePath] = e
	return s.save()
}

// Remove drops a fingerprint and persists immediately.
func (s *Store) Remove(sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sourcePath)
	return s.save()
}

// Rename remaps a fingerprint to a new source path, keeping the hash
// and chunk ids. Used when archiving relocates a file.
func (s *Store) Rename(oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[oldPath]
	if !ok {
		return fmt.Errorf("no fingerprint for %s", oldPath)
	}
	delete(s.entries, oldPath)
	s.entries[newPath] = e
	return s.save()
}

// Paths returns all fingerprinted source paths, sorted.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// save writes atomically via temp file + rename. Caller holds the lock.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprint store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create fingerprint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fingerprints-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp fingerprint file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write fingerprint store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close fingerprint store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace fingerprint store: %w", err)
	}
	return nil
}

// HashBytes returns the whole-file content hash used for change
// detection.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
