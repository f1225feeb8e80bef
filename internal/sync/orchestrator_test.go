package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codectx/codectx/internal/chunk"
	"github.com/codectx/codectx/internal/collection"
	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/fsproc"
	"github.com/codectx/codectx/internal/indexer"
	"github.com/codectx/codectx/internal/progress"
	"github.com/codectx/codectx/internal/reposync"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/codectx/codectx/internal/vocab"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// gatherCounterValue reads a counter's current value straight off the
// registry, since the reporter doesn't expose its collectors directly.
func gatherCounterValue(t *testing.T, reg *prometheus.Registry, name, repoID string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "repo_id" && lp.GetValue() == repoID {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with repo_id=%s not found", name, repoID)
	return 0
}

type stubChunker struct{}

func (stubChunker) Chunk(ctx context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error) {
	return []*chunk.Chunk{{ID: "chunk-" + file.Path, FilePath: file.Path, Content: string(file.Content), Language: file.Language}}, nil
}
func (stubChunker) SupportedExtensions() []string { return []string{".go"} }

type stubEmbedder struct{ dims int }

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dims), nil
}
func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}
func (s stubEmbedder) Dimensions() int                    { return s.dims }
func (s stubEmbedder) ModelName() string                  { return "stub" }
func (s stubEmbedder) Available(ctx context.Context) bool { return true }
func (s stubEmbedder) Close() error                       { return nil }
func (s stubEmbedder) SetBatchIndex(idx int)              {}
func (s stubEmbedder) SetFinalBatch(isFinal bool)         {}

func newFixtureRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	sig := &object.Signature{Name: "tester", Email: "tester@example.com"}
	_, err = wt.Commit("initial commit", &git.CommitOptions{Author: sig})
	require.NoError(t, err)
	return dir
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	scanner, err := fsproc.New()
	require.NoError(t, err)
	proc := fsproc.NewProcessor(scanner, map[string]chunk.Chunker{"go": stubChunker{}}, nil, 2)

	vmgr, err := vocab.Open(filepath.Join(t.TempDir(), "vocab.bin"))
	require.NoError(t, err)

	store := vectorstore.NewInMemoryStore()
	tenancy := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	storeCfg := config.StoreConfig{HNSWM: 16, HNSWEfConstruction: 200, UpsertBatchSize: 10, UpsertConcurrency: 2}
	collMgr := collection.NewManager(store, storeCfg)
	idx := indexer.New(proc, vmgr, stubEmbedder{dims: 8}, store, collMgr, tenancy, storeCfg)

	preparer := reposync.NewPreparer(nil)

	lockDir := t.TempDir()
	o := New(config.SyncConfig{QueueSize: 8, LockDir: lockDir}, preparer, idx)
	o.Start()
	t.Cleanup(o.Stop)
	return o
}

func waitForState(t *testing.T, o *Orchestrator, repoID string, want State) RepoState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, ok := o.State(repoID)
		if ok && state.State != StateSyncing {
			require.Equal(t, want, state.State)
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for repo %s to reach state %s", repoID, want)
	return RepoState{}
}

func TestOrchestrator_Enqueue_SyncsRepositoryToFullySynced(t *testing.T) {
	o := newTestOrchestrator(t)
	remote := newFixtureRemote(t)
	localPath := filepath.Join(t.TempDir(), "clone")

	o.Register(Repo{ID: "myrepo", TenantID: "acme", RemoteURL: remote, LocalPath: localPath, DefaultBranch: "master"})
	require.NoError(t, o.Enqueue(context.Background(), "myrepo", ""))

	state := waitForState(t, o, "myrepo", StateFullySynced)
	require.NotEmpty(t, state.LastCommitSHA)
	require.Equal(t, ErrorTypeNone, state.ErrorType)
}

func TestOrchestrator_Enqueue_UnknownRepoReturnsNotFound(t *testing.T) {
	o := newTestOrchestrator(t)
	err := o.Enqueue(context.Background(), "ghost", "")
	require.Error(t, err)
}

func TestOrchestrator_Enqueue_BadRemoteMarksFailed(t *testing.T) {
	o := newTestOrchestrator(t)
	localPath := filepath.Join(t.TempDir(), "clone")

	o.Register(Repo{ID: "bad", TenantID: "acme", RemoteURL: filepath.Join(t.TempDir(), "does-not-exist"), LocalPath: localPath, DefaultBranch: "main"})
	require.NoError(t, o.Enqueue(context.Background(), "bad", ""))

	state := waitForState(t, o, "bad", StateFailed)
	require.NotEmpty(t, state.LastError)
}

func TestOrchestrator_SetReporter_PublishesPerBatchDeltasNotCumulativeTotals(t *testing.T) {
	scanner, err := fsproc.New()
	require.NoError(t, err)
	proc := fsproc.NewProcessor(scanner, map[string]chunk.Chunker{"go": stubChunker{}}, nil, 2)

	vmgr, err := vocab.Open(filepath.Join(t.TempDir(), "vocab.bin"))
	require.NoError(t, err)

	store := vectorstore.NewInMemoryStore()
	tenancy := config.TenancyConfig{Enabled: true, DefaultTenant: "acme", CollectionPrefix: "codectx_"}
	// A batch size of 1 forces IndexRepoFiles to flush (and call ProgressFunc)
	// once per file, so this exercises the cumulative-to-delta conversion
	// across more than one call.
	storeCfg := config.StoreConfig{HNSWM: 16, HNSWEfConstruction: 200, UpsertBatchSize: 1, UpsertConcurrency: 1}
	collMgr := collection.NewManager(store, storeCfg)
	idx := indexer.New(proc, vmgr, stubEmbedder{dims: 8}, store, collMgr, tenancy, storeCfg)

	preparer := reposync.NewPreparer(nil)
	o := New(config.SyncConfig{QueueSize: 8, LockDir: t.TempDir()}, preparer, idx)

	reg := prometheus.NewRegistry()
	reporter := progress.NewReporter(reg)
	o.SetReporter(reporter)
	o.Start()
	t.Cleanup(o.Stop)

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("package main"), 0o644))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com"}
	_, err = wt.Commit("initial commit", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	o.Register(Repo{ID: "multi", TenantID: "acme", RemoteURL: dir, LocalPath: filepath.Join(t.TempDir(), "clone"), DefaultBranch: "master"})
	require.NoError(t, o.Enqueue(context.Background(), "multi", ""))

	waitForState(t, o, "multi", StateFullySynced)

	// Three files, one chunk each (per stubChunker): the counters must land
	// on the true total, not the sum of cumulative snapshots across the
	// three per-file flushes.
	require.Equal(t, float64(3), gatherCounterValue(t, reg, "codectx_index_files_indexed_total", "multi"))
	require.Equal(t, float64(3), gatherCounterValue(t, reg, "codectx_index_chunks_indexed_total", "multi"))
}

func TestOrchestrator_Resolve_ReturnsRegisteredRepoInfo(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Register(Repo{ID: "myrepo", TenantID: "acme", DefaultBranch: "main"})

	info, err := o.Resolve(context.Background(), "myrepo")
	require.NoError(t, err)
	require.Equal(t, "acme", info.TenantID)
	require.Equal(t, "main", info.DefaultBranch)
}
