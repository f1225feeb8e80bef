package collection

import (
	"context"
	"testing"

	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_FormatsTenantRepoBranch(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	assert.Equal(t, "codectx_acme_myrepo_br_main", Name(cfg, "myrepo", "main"))
}

func TestName_SanitizesBranchSlashes(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	assert.Equal(t, "codectx_acme_myrepo_br_feature-foo", Name(cfg, "myrepo", "feature/foo"))
}

func TestName_IgnoresDefaultTenantWhenTenancyDisabled(t *testing.T) {
	cfg := config.TenancyConfig{Enabled: false, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	assert.Equal(t, "codectx_default_myrepo_br_main", Name(cfg, "myrepo", "main"))
}

func TestManager_Ensure_CreatesMissingCollection(t *testing.T) {
	store := vectorstore.NewInMemoryStore()
	mgr := NewManager(store, config.StoreConfig{HNSWM: 16, HNSWEfConstruction: 200})

	err := mgr.Ensure(context.Background(), "codectx_acme_repo_br_main", 128)
	require.NoError(t, err)

	exists, err := store.CollectionExists(context.Background(), "codectx_acme_repo_br_main")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestManager_Ensure_RecreatesOnDimensionDrift(t *testing.T) {
	store := vectorstore.NewInMemoryStore()
	mgr := NewManager(store, config.StoreConfig{HNSWM: 16, HNSWEfConstruction: 200})
	ctx := context.Background()

	require.NoError(t, mgr.Ensure(ctx, "codectx_acme_repo_br_main", 128))
	require.NoError(t, mgr.Ensure(ctx, "codectx_acme_repo_br_main", 256))

	info, err := store.GetCollectionInfo(ctx, "codectx_acme_repo_br_main")
	require.NoError(t, err)
	assert.Equal(t, 256, info.DenseDimensions)
}

func TestManager_Ensure_NoopWhenDimensionsMatch(t *testing.T) {
	store := vectorstore.NewInMemoryStore()
	mgr := NewManager(store, config.StoreConfig{HNSWM: 16, HNSWEfConstruction: 200})
	ctx := context.Background()

	require.NoError(t, mgr.Ensure(ctx, "codectx_acme_repo_br_main", 128))
	require.NoError(t, mgr.Ensure(ctx, "codectx_acme_repo_br_main", 128))
}
