package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codectx/codectx/internal/output"
	"github.com/codectx/codectx/internal/reporegistry"
	codesync "github.com/codectx/codectx/internal/sync"
	"github.com/codectx/codectx/internal/watcher"
)

// runWatch starts a file watcher over rec's local clone and re-syncs it on
// every debounced batch of changes, persisting the collection snapshot
// whenever a sync round actually advances. Runs until interrupted.
func runWatch(ctx context.Context, a *app, rec reporegistry.Record, branch string, out *output.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	if err := a.orchestrator.WatchRepo(ctx, w, rec.LocalPath, rec.ID, branch); err != nil {
		return fmt.Errorf("failed to watch repository: %w", err)
	}

	out.Status("", fmt.Sprintf("watching %s for changes, press Ctrl+C to stop", rec.LocalPath))

	collName := a.collectionName(rec.TenantID, rec.ID, branch)
	lastSynced := time.Time{}
	if state, ok := a.orchestrator.State(rec.ID); ok {
		lastSynced = state.LastSyncedAt
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return nil
		case <-ticker.C:
			state, ok := a.orchestrator.State(rec.ID)
			if !ok || state.State == codesync.StateSyncing {
				continue
			}
			if state.LastSyncedAt.After(lastSynced) {
				lastSynced = state.LastSyncedAt
				if err := a.saveCollection(collName); err != nil {
					out.Warningf("failed to snapshot collection %s to disk: %v", collName, err)
					continue
				}
				out.Status("", fmt.Sprintf("re-synced %s, collection snapshot updated", rec.ID))
			}
		}
	}
}
