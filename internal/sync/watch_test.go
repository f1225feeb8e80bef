package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codectx/codectx/internal/watcher"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_WatchRepo_EnqueuesResyncOnFileChange(t *testing.T) {
	o := newTestOrchestrator(t)
	remote := newFixtureRemote(t)
	localPath := filepath.Join(t.TempDir(), "clone")

	o.Register(Repo{ID: "watched", TenantID: "acme", RemoteURL: remote, LocalPath: localPath, DefaultBranch: "master"})
	require.NoError(t, o.Enqueue(context.Background(), "watched", ""))
	first := waitForState(t, o, "watched", StateFullySynced)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := watcher.NewHybridWatcher(watcher.Options{DebounceWindow: 10 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, o.WatchRepo(ctx, w, localPath, "watched", ""))

	require.NoError(t, os.WriteFile(filepath.Join(localPath, "new_file.go"), []byte("package main"), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, _ := o.State("watched")
		if state.State == StateFullySynced && state.LastSyncedAt.After(first.LastSyncedAt) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected file change to trigger a re-sync")
}
