package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/codectx/codectx/internal/collection"
	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/codectx/codectx/internal/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{ dims int }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dims), nil
}
func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}
func (f fakeEmbedder) Dimensions() int                { return f.dims }
func (f fakeEmbedder) ModelName() string              { return "fake" }
func (f fakeEmbedder) Available(ctx context.Context) bool { return true }
func (f fakeEmbedder) Close() error                   { return nil }
func (f fakeEmbedder) SetBatchIndex(idx int)          {}
func (f fakeEmbedder) SetFinalBatch(isFinal bool)     {}

type fakeResolver struct {
	repos map[string]*RepoInfo
}

func (r fakeResolver) Resolve(ctx context.Context, repoID string) (*RepoInfo, error) {
	repo, ok := r.repos[repoID]
	if !ok {
		return nil, apperrors.NotFound("fakeResolver.Resolve", "no such repo")
	}
	return repo, nil
}

func newTestVocab(t *testing.T) *vocab.Manager {
	t.Helper()
	v, err := vocab.Open(filepath.Join(t.TempDir(), "vocab.bin"))
	require.NoError(t, err)
	return v
}

func TestPlanner_Search_ResolvesDefaultBranchAndQueriesCollection(t *testing.T) {
	tenancy := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	store := vectorstore.NewInMemoryStore()
	collMgr := collection.NewManager(store, config.StoreConfig{HNSWM: 16, HNSWEfConstruction: 200})
	collName := collection.NameForTenant(tenancy, "acme", "myrepo", "main")
	require.NoError(t, collMgr.Ensure(context.Background(), collName, 4))

	require.NoError(t, store.UpsertPoints(context.Background(), collName, []vectorstore.Point{
		{ID: "c1", Dense: []float32{1, 0, 0, 0}, Payload: map[string]string{
			"file_path": "a.go", "language": "go", "branch": "main",
			"element_type": "function", "start_line": "3", "end_line": "9",
			"chunk_content": "pub fn hello() {\n    println()\n}",
		}},
	}))

	resolver := fakeResolver{repos: map[string]*RepoInfo{
		"myrepo": {ID: "myrepo", TenantID: "acme", DefaultBranch: "main"},
	}}

	planner := New(resolver, tenancy, fakeEmbedder{dims: 4}, newTestVocab(t), store)

	results, err := planner.Search(context.Background(), Request{TenantID: "acme", RepoID: "myrepo", Query: "hello"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "a.go", results[0].FilePath)
	assert.Equal(t, 3, results[0].StartLine)
	assert.Equal(t, 10, results[0].EndLine)
	assert.Equal(t, "pub fn hello() {", results[0].Preview)
	assert.Empty(t, results[0].Content)
}

func TestPlanner_Search_FiltersByElementTypeAndBranch(t *testing.T) {
	tenancy := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	store := vectorstore.NewInMemoryStore()
	collMgr := collection.NewManager(store, config.StoreConfig{HNSWM: 16, HNSWEfConstruction: 200})
	collName := collection.NameForTenant(tenancy, "acme", "myrepo", "main")
	require.NoError(t, collMgr.Ensure(context.Background(), collName, 4))

	require.NoError(t, store.UpsertPoints(context.Background(), collName, []vectorstore.Point{
		{ID: "fn", Dense: []float32{1, 0, 0, 0}, Payload: map[string]string{"branch": "main", "element_type": "function"}},
		{ID: "cls", Dense: []float32{1, 0, 0, 0}, Payload: map[string]string{"branch": "main", "element_type": "class"}},
		{ID: "other-branch", Dense: []float32{1, 0, 0, 0}, Payload: map[string]string{"branch": "feature", "element_type": "function"}},
	}))

	resolver := fakeResolver{repos: map[string]*RepoInfo{
		"myrepo": {ID: "myrepo", TenantID: "acme", DefaultBranch: "main"},
	}}
	planner := New(resolver, tenancy, fakeEmbedder{dims: 4}, newTestVocab(t), store)

	results, err := planner.Search(context.Background(), Request{
		TenantID: "acme", RepoID: "myrepo", Query: "hello", ElementType: "function",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fn", results[0].ChunkID)
	assert.Equal(t, "function", results[0].ElementType)
}

func TestPlanner_Search_ShowCodePopulatesContent(t *testing.T) {
	tenancy := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	store := vectorstore.NewInMemoryStore()
	collMgr := collection.NewManager(store, config.StoreConfig{HNSWM: 16, HNSWEfConstruction: 200})
	collName := collection.NameForTenant(tenancy, "acme", "myrepo", "main")
	require.NoError(t, collMgr.Ensure(context.Background(), collName, 4))

	require.NoError(t, store.UpsertPoints(context.Background(), collName, []vectorstore.Point{
		{ID: "c1", Dense: []float32{1, 0, 0, 0}, Payload: map[string]string{
			"branch": "main", "chunk_content": "func Hello() {}\n",
		}},
	}))

	resolver := fakeResolver{repos: map[string]*RepoInfo{
		"myrepo": {ID: "myrepo", TenantID: "acme", DefaultBranch: "main"},
	}}
	planner := New(resolver, tenancy, fakeEmbedder{dims: 4}, newTestVocab(t), store)

	results, err := planner.Search(context.Background(), Request{
		TenantID: "acme", RepoID: "myrepo", Query: "hello", ShowCode: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "func Hello() {}\n", results[0].Content)
}

func TestPlanner_Search_RejectsCrossTenantAccess(t *testing.T) {
	tenancy := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	store := vectorstore.NewInMemoryStore()

	resolver := fakeResolver{repos: map[string]*RepoInfo{
		"myrepo": {ID: "myrepo", TenantID: "other-tenant", DefaultBranch: "main"},
	}}

	planner := New(resolver, tenancy, fakeEmbedder{dims: 4}, newTestVocab(t), store)

	_, err := planner.Search(context.Background(), Request{TenantID: "acme", RepoID: "myrepo", Query: "hello"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))
}

func TestPlanner_Search_UnknownRepoReturnsNotFound(t *testing.T) {
	tenancy := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	store := vectorstore.NewInMemoryStore()
	resolver := fakeResolver{repos: map[string]*RepoInfo{}}

	planner := New(resolver, tenancy, fakeEmbedder{dims: 4}, newTestVocab(t), store)

	_, err := planner.Search(context.Background(), Request{TenantID: "acme", RepoID: "missing", Query: "hello"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
