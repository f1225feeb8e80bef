// Package reporegistry persists the set of repositories codectx knows
// about across CLI invocations. The in-memory Sync Orchestrator forgets
// every registration the moment the process exits, so the CLI needs a
// small on-disk record to re-register repositories at the start of each
// command; this mirrors the atomic-write-json pattern the rest of the
// pipeline uses for its own durable state.
package reporegistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is one repository's persisted identity.
type Record struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	RemoteURL     string `json:"remote_url"`
	LocalPath     string `json:"local_path"`
	DefaultBranch string `json:"default_branch"`
}

// Registry is a JSON-file-backed set of Records, keyed by ID.
type Registry struct {
	path string

	mu      sync.Mutex
	records map[string]Record
}

// Open loads the registry file at path, creating an empty one if it
// doesn't exist yet.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, records: make(map[string]Record)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read repository registry %s: %w", path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse repository registry %s: %w", path, err)
	}
	for _, rec := range records {
		r.records[rec.ID] = rec
	}
	return r, nil
}

// List returns every registered record, in no particular order.
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// Get returns the record for id, if registered.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Put inserts or replaces rec and persists the registry.
func (r *Registry) Put(rec Record) error {
	r.mu.Lock()
	r.records[rec.ID] = rec
	r.mu.Unlock()
	return r.save()
}

// Remove deletes id from the registry and persists the change. A no-op
// if id isn't registered.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	delete(r.records, id)
	r.mu.Unlock()
	return r.save()
}

// save writes the registry to disk atomically: write to a temp file in
// the same directory, then rename over the real path.
func (r *Registry) save() error {
	r.mu.Lock()
	records := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal repository registry: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write repository registry: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save repository registry: %w", err)
	}
	return nil
}
