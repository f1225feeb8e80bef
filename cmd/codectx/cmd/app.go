package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codectx/codectx/internal/chunk"
	"github.com/codectx/codectx/internal/collection"
	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/embed"
	"github.com/codectx/codectx/internal/fsproc"
	"github.com/codectx/codectx/internal/indexer"
	"github.com/codectx/codectx/internal/progress"
	"github.com/codectx/codectx/internal/query"
	"github.com/codectx/codectx/internal/reporegistry"
	"github.com/codectx/codectx/internal/reposync"
	"github.com/codectx/codectx/internal/sync"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/codectx/codectx/internal/vocab"
	"github.com/prometheus/client_golang/prometheus"
)

// app bundles every pipeline collaborator a subcommand needs. Built once
// per invocation by newApp, and torn down by its Close method.
type app struct {
	cfg      *config.AppConfig
	dataDir  string
	registry *reporegistry.Registry

	vocabulary   *vocab.Manager
	store        *vectorstore.InMemoryStore
	collections  *collection.Manager
	embedder     embed.Embedder
	orchestrator *sync.Orchestrator
	planner      *query.Planner
	reporter     *progress.Reporter

	snapshotDir string
}

// newApp wires together the full pipeline for one CLI invocation, rooted
// at the project directory projectDir.
func newApp(ctx context.Context, projectDir string) (*app, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dataDir := filepath.Dir(cfg.Vocabulary.StoragePath)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	registry, err := reporegistry.Open(filepath.Join(dataDir, "repos.json"))
	if err != nil {
		return nil, err
	}

	vocabulary, err := vocab.Open(cfg.Vocabulary.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}

	baseEmbedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedder: %w", err)
	}
	embedder := embed.NewPool(baseEmbedder, cfg.Embeddings.PoolSize)

	store := vectorstore.NewInMemoryStore()
	collections := collection.NewManager(store, cfg.Store)

	scanner, err := fsproc.New()
	if err != nil {
		return nil, fmt.Errorf("failed to build scanner: %w", err)
	}
	processor := fsproc.NewProcessor(scanner, chunkersByLanguage(), chunk.NewCodeChunker(), cfg.Paths.Workers)

	idx := indexer.New(processor, vocabulary, embedder, store, collections, cfg.Tenancy, cfg.Store)

	preparer := reposync.NewPreparer(reposync.DefaultSSHAuth(""))

	orchestrator := sync.New(cfg.Sync, preparer, idx)
	orchestrator.Start()

	for _, rec := range registry.List() {
		orchestrator.Register(sync.Repo{
			ID:            rec.ID,
			TenantID:      rec.TenantID,
			RemoteURL:     rec.RemoteURL,
			LocalPath:     rec.LocalPath,
			DefaultBranch: rec.DefaultBranch,
		})
	}

	planner := query.New(orchestrator, cfg.Tenancy, embedder, vocabulary, store)
	reporter := progress.NewReporter(prometheus.NewRegistry())
	orchestrator.SetReporter(reporter)

	return &app{
		cfg:          cfg,
		dataDir:      dataDir,
		registry:     registry,
		vocabulary:   vocabulary,
		store:        store,
		collections:  collections,
		embedder:     embedder,
		orchestrator: orchestrator,
		planner:      planner,
		reporter:     reporter,
		snapshotDir:  filepath.Join(dataDir, "collections"),
	}, nil
}

// Close stops the orchestrator's worker and releases the embedder.
func (a *app) Close() {
	a.orchestrator.Stop()
	_ = a.embedder.Close()
}

// chunkersByLanguage builds the language -> Chunker map the Processor
// dispatches on; a shared CodeChunker instance already falls back to a
// line-window split for any language it doesn't have a tree-sitter
// grammar for, so it also serves as the Processor's fallback chunker.
func chunkersByLanguage() map[string]chunk.Chunker {
	code := chunk.NewCodeChunker()
	markdown := chunk.NewMarkdownChunker()
	return map[string]chunk.Chunker{
		"go":         code,
		"typescript": code,
		"javascript": code,
		"python":     code,
		"markdown":   markdown,
	}
}

// collectionName computes the vector-store collection name for a
// registered repository's branch, the same way the indexer does.
func (a *app) collectionName(tenantID, repoID, branch string) string {
	return collection.NameForTenant(a.cfg.Tenancy, tenantID, repoID, branch)
}

// loadCollection restores a previously-saved collection snapshot into
// the in-process store, so a fresh CLI invocation can search state
// indexed by an earlier one.
func (a *app) loadCollection(name string) error {
	return a.store.LoadCollection(name, a.snapshotDir)
}

// saveCollection snapshots a collection to disk after an indexing run,
// so the next CLI invocation doesn't start from an empty store.
func (a *app) saveCollection(name string) error {
	return a.store.SaveCollection(name, a.snapshotDir)
}
