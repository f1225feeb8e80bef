// Package vocab implements the persistent token vocabulary behind the
// sparse half of the hybrid index: every distinct code/text token seen
// during ingestion is assigned a monotonically increasing integer id,
// and that id never changes or gets reused once assigned, so sparse
// vectors stay stable across incremental re-indexing.
package vocab

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/gofrs/flock"
)

// Manager is a persistent, append-only token vocabulary. It is safe for
// concurrent use from goroutines within one process; cross-process
// mutual exclusion during Save is provided by an external flock
// (see Sync Orchestrator, which takes the lock for the whole sync turn).
type Manager struct {
	mu   sync.RWMutex
	path string

	tokenToID map[string]uint32
	idToToken []string // index i holds the token for id i
	nextID    uint32

	dirty bool
}

// persistedVocab is the gob-encoded on-disk representation.
type persistedVocab struct {
	IDToToken []string
	NextID    uint32
}

// Open loads the vocabulary at path, creating an empty one if it doesn't
// exist yet (load-or-create semantics).
func Open(path string) (*Manager, error) {
	m := &Manager{
		path:      path,
		tokenToID: make(map[string]uint32),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return m, nil
	}

	if err := m.load(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindVocabularyPersistence, "vocab.Open", err)
	}
	return m, nil
}

func (m *Manager) load() error {
	file, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("open vocabulary file: %w", err)
	}
	defer file.Close()

	var persisted persistedVocab
	decoder := gob.NewDecoder(bufio.NewReader(file))
	if err := decoder.Decode(&persisted); err != nil {
		return fmt.Errorf("decode vocabulary: %w", err)
	}

	m.idToToken = persisted.IDToToken
	m.nextID = persisted.NextID
	m.tokenToID = make(map[string]uint32, len(persisted.IDToToken))
	for id, token := range persisted.IDToToken {
		m.tokenToID[token] = uint32(id)
	}
	return nil
}

// Save persists the vocabulary with a write-temp-then-rename sequence so a
// crash mid-write never corrupts the on-disk file. Callers that need
// cross-process safety (two codectx processes saving the same vocabulary
// at once) must hold a flock around the call.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if !m.dirty {
		return nil
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.KindVocabularyPersistence, "vocab.Save", err)
	}

	tmpPath := m.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.Wrap(apperrors.KindVocabularyPersistence, "vocab.Save", err)
	}

	persisted := persistedVocab{IDToToken: m.idToToken, NextID: m.nextID}
	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(persisted); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.KindVocabularyPersistence, "vocab.Save", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.KindVocabularyPersistence, "vocab.Save", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return apperrors.Wrap(apperrors.KindVocabularyPersistence, "vocab.Save", err)
	}

	m.dirty = false
	return nil
}

// SaveWithLock takes a filesystem lock over lockPath for the duration of
// Save, guarding against a concurrent codectx process (e.g. a background
// sync) writing the same vocabulary file at once.
func (m *Manager) SaveWithLock(lockPath string) error {
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return apperrors.Wrap(apperrors.KindVocabularyPersistence, "vocab.SaveWithLock", err)
	}
	if !locked {
		return apperrors.New(apperrors.KindVocabularyPersistence, "vocab.SaveWithLock",
			"another process holds the vocabulary lock", nil)
	}
	defer fl.Unlock()

	return m.Save()
}

// Lookup returns the id for token without allocating a new one.
func (m *Manager) Lookup(token string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokenToID[token]
	return id, ok
}

// Intern returns the id for token, allocating and persisting a new one in
// memory (not yet on disk — call Save to flush) if it hasn't been seen
// before. Ids are never reused, even after the token is fully gone from
// the corpus, which keeps sparse vector dimensions stable across reindex.
func (m *Manager) Intern(token string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.tokenToID[token]; ok {
		return id
	}

	id := m.nextID
	m.nextID++
	m.tokenToID[token] = id
	m.idToToken = append(m.idToToken, token)
	m.dirty = true
	return id
}

// InternAll interns every token and returns a sparse term-frequency vector
// (token id -> raw count, no IDF applied — IDF weighting, if
// any, happens in the vector store, not at ingest).
func (m *Manager) InternAll(tokens []string) map[uint32]float32 {
	freq := make(map[uint32]float32, len(tokens))
	for _, t := range tokens {
		id := m.Intern(t)
		freq[id]++
	}
	return freq
}

// Size returns the number of distinct tokens known to the vocabulary.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.idToToken)
}

// Token returns the token for id, or "" if id is out of range.
func (m *Manager) Token(id uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.idToToken) {
		return "", false
	}
	return m.idToToken[id], true
}
