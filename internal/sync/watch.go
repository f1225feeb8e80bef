package sync

import (
	"context"
	"log/slog"

	"github.com/codectx/codectx/internal/watcher"
)

// WatchRepo starts w and forwards every debounced batch of file events as
// a re-sync request for repoID/branch, until ctx is cancelled or w stops.
// Individual file events aren't applied incrementally: any touched file
// just marks the repo dirty and a full IndexRepoFiles run picks up the
// current tree on its next turn through the queue.
func (o *Orchestrator) WatchRepo(ctx context.Context, w *watcher.HybridWatcher, rootPath, repoID, branch string) error {
	if err := w.Start(ctx, rootPath); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = w.Stop()
				return
			case events, ok := <-w.Events():
				if !ok {
					return
				}
				if len(events) == 0 {
					continue
				}
				slog.Debug("file events observed, scheduling re-sync",
					slog.String("repo_id", repoID),
					slog.Int("event_count", len(events)))
				if err := o.Enqueue(ctx, repoID, branch); err != nil {
					slog.Warn("failed to enqueue re-sync after file events",
						slog.String("repo_id", repoID),
						slog.String("error", err.Error()))
				}
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Warn("watcher error", slog.String("repo_id", repoID), slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
