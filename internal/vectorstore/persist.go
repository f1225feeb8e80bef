package vectorstore

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// snapshot is the gob-encoded on-disk representation of one collection: the
// dense graph is written through coder/hnsw's own binary export format,
// with a gob-encoded sidecar for everything coder/hnsw doesn't know about -
// string IDs, payloads, and the sparse inverted index.
type snapshot struct {
	Config  CollectionConfig
	IDToKey map[string]uint64
	NextKey uint64
	Payload map[string]map[string]string
	Sparse  map[string]map[uint32]float32
}

// SaveCollection persists one collection's dense graph and sidecar state
// to dir, using a temp-file-then-rename sequence for both files so a
// crash mid-write never leaves a corrupt snapshot in place.
func (s *InMemoryStore) SaveCollection(name, dir string) error {
	c, err := s.getCollection(name)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	graphPath := filepath.Join(dir, name+".hnsw")
	tmpGraphPath := graphPath + ".tmp"
	graphFile, err := os.Create(tmpGraphPath)
	if err != nil {
		return fmt.Errorf("create graph snapshot: %w", err)
	}
	if err := c.graph.Export(graphFile); err != nil {
		graphFile.Close()
		os.Remove(tmpGraphPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := graphFile.Close(); err != nil {
		os.Remove(tmpGraphPath)
		return fmt.Errorf("close graph snapshot: %w", err)
	}
	if err := os.Rename(tmpGraphPath, graphPath); err != nil {
		os.Remove(tmpGraphPath)
		return fmt.Errorf("rename graph snapshot: %w", err)
	}

	sidecarPath := filepath.Join(dir, name+".meta")
	tmpSidecarPath := sidecarPath + ".tmp"
	sidecarFile, err := os.Create(tmpSidecarPath)
	if err != nil {
		return fmt.Errorf("create sidecar snapshot: %w", err)
	}
	snap := snapshot{
		Config:  c.cfg,
		IDToKey: c.idToKey,
		NextKey: c.nextKey,
		Payload: c.payload,
		Sparse:  c.sparse,
	}
	if err := gob.NewEncoder(sidecarFile).Encode(snap); err != nil {
		sidecarFile.Close()
		os.Remove(tmpSidecarPath)
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := sidecarFile.Close(); err != nil {
		os.Remove(tmpSidecarPath)
		return fmt.Errorf("close sidecar snapshot: %w", err)
	}
	return os.Rename(tmpSidecarPath, sidecarPath)
}

// LoadCollection restores a collection previously written by SaveCollection.
func (s *InMemoryStore) LoadCollection(name, dir string) error {
	sidecarPath := filepath.Join(dir, name+".meta")
	sidecarFile, err := os.Open(sidecarPath)
	if err != nil {
		return fmt.Errorf("open sidecar snapshot: %w", err)
	}
	defer sidecarFile.Close()

	var snap snapshot
	if err := gob.NewDecoder(sidecarFile).Decode(&snap); err != nil {
		return fmt.Errorf("decode sidecar: %w", err)
	}

	c := newCollection(snap.Config)
	c.idToKey = snap.IDToKey
	c.nextKey = snap.NextKey
	c.payload = snap.Payload
	c.sparse = snap.Sparse
	c.keyToID = make(map[uint64]string, len(snap.IDToKey))
	for id, key := range snap.IDToKey {
		c.keyToID[key] = id
	}
	c.index = make(map[uint32][]posting)
	for id, sparse := range snap.Sparse {
		for tokenID, count := range sparse {
			c.index[tokenID] = append(c.index[tokenID], posting{id: id, count: count})
		}
	}

	graphPath := filepath.Join(dir, name+".hnsw")
	graphFile, err := os.Open(graphPath)
	if err != nil {
		return fmt.Errorf("open graph snapshot: %w", err)
	}
	defer graphFile.Close()

	if err := c.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.mu.Lock()
	s.collections[name] = c
	s.mu.Unlock()

	return nil
}
