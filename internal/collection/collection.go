// Package collection derives vector-store collection names from
// tenant/repo/branch identity and keeps each collection's schema in sync
// with the embedder currently configured.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/vectorstore"
)

// PayloadIndexKeys are the payload fields every collection indexes for
// exact-match filtering during query (tenant/repo/branch isolation, plus
// the file path for chunk-level deletes).
var PayloadIndexKeys = []string{"tenant_id", "repo_id", "branch", "file_path"}

// Name derives the branch-aware collection name for a tenant/repo/branch
// triple: "<prefix><tenant>_<repo>_br_<branch>". Branch names are
// sanitized so slashes in names like "feature/foo" don't collide with the
// separator.
func Name(cfg config.TenancyConfig, repo, branch string) string {
	tenant := cfg.DefaultTenant
	if !cfg.Enabled {
		tenant = "default"
	}
	return fmt.Sprintf("%s%s_%s_br_%s", cfg.CollectionPrefix, sanitize(tenant), sanitize(repo), sanitize(branch))
}

// NameForTenant derives the collection name for an explicit tenant,
// overriding cfg.DefaultTenant. Used when multi-tenancy is enabled and the
// caller resolved a tenant other than the default.
func NameForTenant(cfg config.TenancyConfig, tenant, repo, branch string) string {
	if !cfg.Enabled || tenant == "" {
		tenant = cfg.DefaultTenant
	}
	return fmt.Sprintf("%s%s_%s_br_%s", cfg.CollectionPrefix, sanitize(tenant), sanitize(repo), sanitize(branch))
}

func sanitize(s string) string {
	s = strings.ToLower(s)
	replacer := strings.NewReplacer("/", "-", " ", "-", ":", "-", "\\", "-")
	return replacer.Replace(s)
}

// Manager ensures a collection exists with the schema the currently
// configured embedder expects, dropping and recreating it on dimension
// drift (switching embedding models mid-project is a deliberate, logged
// operation - not an error).
type Manager struct {
	store    vectorstore.Store
	storeCfg config.StoreConfig
}

// NewManager builds a Manager bound to store, using storeCfg for the HNSW
// parameters of any collection it creates.
func NewManager(store vectorstore.Store, storeCfg config.StoreConfig) *Manager {
	return &Manager{store: store, storeCfg: storeCfg}
}

// Ensure makes sure name exists with dimensions dims, (re)creating it if it
// is missing or was built for a different embedding dimensionality.
func (m *Manager) Ensure(ctx context.Context, name string, dims int) error {
	exists, err := m.store.CollectionExists(ctx, name)
	if err != nil {
		return apperrors.Wrap(apperrors.KindVectorStore, "collection.Manager.Ensure", err).
			WithDetail("collection", name)
	}

	if exists {
		info, err := m.store.GetCollectionInfo(ctx, name)
		if err != nil {
			return apperrors.Wrap(apperrors.KindVectorStore, "collection.Manager.Ensure", err).
				WithDetail("collection", name)
		}
		if info.DenseDimensions == dims {
			return nil
		}

		slog.Warn("collection dimension mismatch, dropping and recreating",
			slog.String("collection", name),
			slog.Int("existing_dims", info.DenseDimensions),
			slog.Int("wanted_dims", dims))

		if err := m.store.DeleteCollection(ctx, name); err != nil {
			return apperrors.Wrap(apperrors.KindVectorStore, "collection.Manager.Ensure", err).
				WithDetail("collection", name)
		}
	}

	cfg := vectorstore.CollectionConfig{
		Name:             name,
		DenseDimensions:  dims,
		Metric:           "cos",
		M:                m.storeCfg.HNSWM,
		EfConstruction:   m.storeCfg.HNSWEfConstruction,
		OnDisk:           m.storeCfg.OnDiskVectors,
		PayloadIndexKeys: PayloadIndexKeys,
	}

	if err := m.store.CreateCollection(ctx, cfg); err != nil {
		return apperrors.Wrap(apperrors.KindVectorStore, "collection.Manager.Ensure", err).
			WithDetail("collection", name)
	}

	slog.Info("collection created", slog.String("collection", name), slog.Int("dims", dims))
	return nil
}
