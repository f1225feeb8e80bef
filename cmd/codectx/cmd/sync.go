package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/output"
	codesync "github.com/codectx/codectx/internal/sync"
)

type syncOptions struct {
	branch string
	watch  bool
}

func newSyncCmd() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync <repo-id>",
		Short: "Clone/fetch a registered repository and (re)index it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.branch, "branch", "", "Branch to sync (defaults to the repository's registered default)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Keep running and re-sync on local file changes")

	return cmd
}

func runSync(cmd *cobra.Command, repoID string, opts syncOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp(cmd.Context(), resolveProjectDir())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, ok := a.registry.Get(repoID)
	if !ok {
		return fmt.Errorf("no such repository: %s (run 'codectx repo add' first)", repoID)
	}

	if err := a.orchestrator.Enqueue(cmd.Context(), repoID, opts.branch); err != nil {
		return fmt.Errorf("failed to enqueue sync: %w", err)
	}

	bar := progressbar.NewOptions(-1, progressbar.OptionSetDescription(fmt.Sprintf("syncing %s", repoID)))
	state, err := waitForSync(cmd.Context(), a, repoID, bar)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	switch state.State {
	case codesync.StateFullySynced:
		out.Successf("%s synced at %s (%s)", repoID, state.LastCommitSHA[:min(8, len(state.LastCommitSHA))], state.DefaultBranch)
	case codesync.StateLocalOnly:
		out.Successf("%s indexed from local working tree (no remote configured)", repoID)
	case codesync.StateLocalIndexedRemoteFailed:
		out.Warningf("%s indexed from the last successful clone, but the refresh failed: %s", repoID, state.LastError)
	default:
		out.Errorf("%s sync failed (%s): %s", repoID, state.ErrorType, state.LastError)
		return fmt.Errorf("sync failed: %s", state.LastError)
	}

	collName := a.collectionName(rec.TenantID, repoID, state.DefaultBranch)
	if err := a.saveCollection(collName); err != nil {
		out.Warningf("failed to snapshot collection %s to disk: %v", collName, err)
	}

	if opts.watch {
		return runWatch(cmd.Context(), a, rec, state.DefaultBranch, out)
	}

	return nil
}

// waitForSync polls the orchestrator until repoID leaves StateSyncing.
func waitForSync(ctx context.Context, a *app, repoID string, bar *progressbar.ProgressBar) (codesync.RepoState, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return codesync.RepoState{}, ctx.Err()
		case <-ticker.C:
			state, ok := a.orchestrator.State(repoID)
			if !ok {
				return codesync.RepoState{}, fmt.Errorf("repository %s disappeared from the registry mid-sync", repoID)
			}
			_ = bar.Add(1)
			if state.State != codesync.StateSyncing && state.State != codesync.StateNotSynced {
				return state, nil
			}
		}
	}
}
