// Package sync is the Sync Orchestrator: a single FIFO worker queue that
// drives each registered repository through reposync.Preparer and
// indexer.Indexer, tracks per-repo state, and doubles as the repository
// registry consumed by query.RepoResolver.
package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/indexer"
	"github.com/codectx/codectx/internal/progress"
	"github.com/codectx/codectx/internal/query"
	"github.com/codectx/codectx/internal/reposync"
	"github.com/codectx/codectx/internal/vocab"
	"github.com/gofrs/flock"
)

// Repo is everything the orchestrator needs to know to prepare and index
// one repository.
type Repo struct {
	ID            string
	TenantID      string
	RemoteURL     string
	LocalPath     string
	DefaultBranch string
}

// RepoState is the orchestrator's live view of one repository.
type RepoState struct {
	Repo
	State         State
	ErrorType     ErrorType
	LastError     string
	LastCommitSHA string
	LastSyncedAt  time.Time
}

var _ query.RepoResolver = (*Orchestrator)(nil)

// job is one queued unit of work: sync repo.ID at branch.
type job struct {
	repoID string
	branch string
}

// Orchestrator serializes sync work for all registered repositories
// through a single worker goroutine, so two syncs never race on the same
// vocabulary file or vector-store collection.
type Orchestrator struct {
	cfg      config.SyncConfig
	preparer *reposync.Preparer
	indexer  *indexer.Indexer
	reporter *progress.Reporter

	mu    sync.RWMutex
	repos map[string]*RepoState

	queue  chan job
	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds an Orchestrator. Call Start to begin processing the queue.
func New(cfg config.SyncConfig, preparer *reposync.Preparer, idx *indexer.Indexer) *Orchestrator {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Orchestrator{
		cfg:      cfg,
		preparer: preparer,
		indexer:  idx,
		repos:    make(map[string]*RepoState),
		queue:    make(chan job, queueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetReporter attaches a progress.Reporter. Every sync run then forwards
// its indexing progress to it; nil (the default) disables reporting.
func (o *Orchestrator) SetReporter(r *progress.Reporter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reporter = r
}

// Start launches the worker goroutine that drains the queue.
func (o *Orchestrator) Start() {
	go o.run()
}

// Stop signals the worker to drain its in-flight job and exit, then waits
// for it to finish.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	<-o.doneCh
}

// Register adds or updates a repository's identity and marks it
// StateNotSynced if it isn't already tracked.
func (o *Orchestrator) Register(r Repo) {
	o.mu.Lock()
	defer o.mu.Unlock()

	existing, ok := o.repos[r.ID]
	if !ok {
		o.repos[r.ID] = &RepoState{Repo: r, State: StateNotSynced}
		return
	}
	existing.Repo = r
}

// Enqueue schedules repoID/branch for a sync run. An empty branch means
// the repository's configured default. Returns apperrors.KindNotFound if
// repoID was never registered.
func (o *Orchestrator) Enqueue(ctx context.Context, repoID, branch string) error {
	o.mu.Lock()
	state, ok := o.repos[repoID]
	if !ok {
		o.mu.Unlock()
		return apperrors.NotFound("sync.Orchestrator.Enqueue", "no such repository: "+repoID)
	}
	state.State = StateSyncing
	o.mu.Unlock()

	select {
	case o.queue <- job{repoID: repoID, branch: branch}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve implements query.RepoResolver, letting the query planner resolve
// repository identity through the same registry the orchestrator syncs
// against.
func (o *Orchestrator) Resolve(ctx context.Context, repoID string) (*query.RepoInfo, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.repos[repoID]
	if !ok {
		return nil, apperrors.NotFound("sync.Orchestrator.Resolve", "no such repository: "+repoID)
	}
	return &query.RepoInfo{ID: state.ID, TenantID: state.TenantID, DefaultBranch: state.DefaultBranch}, nil
}

// State returns a snapshot of a repository's current state. The second
// return value is false if repoID isn't registered.
func (o *Orchestrator) State(repoID string) (RepoState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.repos[repoID]
	if !ok {
		return RepoState{}, false
	}
	return *state, true
}

func (o *Orchestrator) run() {
	defer close(o.doneCh)
	for {
		select {
		case j := <-o.queue:
			o.process(j)
		case <-o.stopCh:
			return
		}
	}
}

func (o *Orchestrator) process(j job) {
	ctx := context.Background()

	o.mu.RLock()
	state, ok := o.repos[j.repoID]
	o.mu.RUnlock()
	if !ok {
		return
	}

	branch := j.branch
	if branch == "" {
		branch = state.DefaultBranch
	}

	lockPath := filepath.Join(o.cfg.LockDir, state.ID+".lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil || !locked {
		slog.Warn("sync skipped: repository locked by another process", slog.String("repo_id", state.ID))
		return
	}
	defer fl.Unlock()

	result, prepErr := o.preparer.Prepare(ctx, state.RemoteURL, state.LocalPath, branch)
	if prepErr != nil {
		o.fail(state.ID, prepErr)
		return
	}

	o.mu.RLock()
	reporter := o.reporter
	o.mu.RUnlock()

	var progressFunc func(filesProcessed, chunksIndexed int)
	if reporter != nil {
		var prevFiles, prevChunks int
		progressFunc = func(filesProcessed, chunksIndexed int) {
			reporter.PublishIndex(progress.IndexReport{
				RepoID:        state.ID,
				Stage:         progress.StageUpserting,
				FilesDone:     filesProcessed - prevFiles,
				ChunksIndexed: chunksIndexed - prevChunks,
			})
			prevFiles, prevChunks = filesProcessed, chunksIndexed
		}
	}

	stats, idxErr := o.indexer.IndexRepoFiles(ctx, indexer.Options{
		TenantID:     state.TenantID,
		RepoID:       state.ID,
		Branch:       result.Branch,
		RootDir:      result.LocalPath,
		CommitHash:   result.CommitSHA,
		ProgressFunc: progressFunc,
	})

	if reporter != nil {
		knownStates := []string{string(StateNotSynced), string(StateSyncing), string(StateFullySynced),
			string(StateLocalOnly), string(StateLocalIndexedRemoteFailed), string(StateFailed)}
		defer func() {
			o.mu.RLock()
			st := o.repos[state.ID]
			s := st.State
			o.mu.RUnlock()
			reporter.SetSyncState(state.ID, string(s), knownStates)
		}()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.repos[state.ID]
	st.LastCommitSHA = result.CommitSHA
	st.LastSyncedAt = now()

	switch {
	case idxErr != nil && stats != nil && stats.FilesIndexed > 0:
		st.State = StateLocalIndexedRemoteFailed
		st.ErrorType = classify(idxErr)
		st.LastError = idxErr.Error()
	case idxErr != nil:
		st.State = StateFailed
		st.ErrorType = classify(idxErr)
		st.LastError = idxErr.Error()
	case state.RemoteURL == "":
		st.State = StateLocalOnly
		st.ErrorType = ErrorTypeNone
		st.LastError = ""
	default:
		st.State = StateFullySynced
		st.ErrorType = ErrorTypeNone
		st.LastError = ""
	}
}

func (o *Orchestrator) fail(repoID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.repos[repoID]
	st.State = StateFailed
	st.ErrorType = classify(err)
	st.LastError = err.Error()
}

// now is a seam so tests can observe ordering without depending on wall
// clock precision.
var now = time.Now

// SaveVocabulary flushes the shared vocabulary under the orchestrator's
// lock directory, guarding against a concurrent sync run touching the
// same file.
func SaveVocabulary(v *vocab.Manager, lockDir string) error {
	return v.SaveWithLock(filepath.Join(lockDir, "vocab.lock"))
}
