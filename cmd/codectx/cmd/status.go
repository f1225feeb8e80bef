package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <repo-id>",
		Short: "Show a registered repository's current sync state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0])
		},
	}
}

func runStatus(cmd *cobra.Command, repoID string) error {
	a, err := newApp(cmd.Context(), resolveProjectDir())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.registry.Get(repoID); !ok {
		return fmt.Errorf("no such repository: %s", repoID)
	}
	state, ok := a.orchestrator.State(repoID)
	if !ok {
		return fmt.Errorf("repository %s is registered but has no sync state yet", repoID)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "repository:   %s\n", state.ID)
	_, _ = fmt.Fprintf(out, "tenant:       %s\n", state.TenantID)
	_, _ = fmt.Fprintf(out, "branch:       %s\n", state.DefaultBranch)
	_, _ = fmt.Fprintf(out, "state:        %s\n", state.State)
	if state.ErrorType != "" {
		_, _ = fmt.Fprintf(out, "error_type:   %s\n", state.ErrorType)
		_, _ = fmt.Fprintf(out, "last_error:   %s\n", state.LastError)
	}
	if state.LastCommitSHA != "" {
		_, _ = fmt.Fprintf(out, "commit:       %s\n", state.LastCommitSHA)
	}
	if !state.LastSyncedAt.IsZero() {
		_, _ = fmt.Fprintf(out, "last_synced:  %s\n", state.LastSyncedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
