package cmd

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/output"
	"github.com/codectx/codectx/internal/reposync"
)

func newBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Inspect and switch a repository's synced branch",
	}
	cmd.AddCommand(newBranchListCmd())
	cmd.AddCommand(newBranchSwitchCmd())
	return cmd
}

func newBranchListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <repo-id>",
		Short: "List every branch known to a repository's local clone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranchList(cmd, args[0])
		},
	}
}

func runBranchList(cmd *cobra.Command, repoID string) error {
	a, err := newApp(cmd.Context(), resolveProjectDir())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, ok := a.registry.Get(repoID)
	if !ok {
		return fmt.Errorf("no such repository: %s", repoID)
	}

	repo, err := git.PlainOpen(rec.LocalPath)
	if err != nil {
		return fmt.Errorf("repository %s hasn't been synced yet: %w", repoID, err)
	}

	branches, err := reposync.ListBranches(repo)
	if err != nil {
		return err
	}
	for _, b := range branches {
		marker := "  "
		if b == rec.DefaultBranch {
			marker = "* "
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", marker, b)
	}
	return nil
}

func newBranchSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <repo-id> <branch>",
		Short: "Set a repository's default branch (run sync afterwards to re-index)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranchSwitch(cmd, args[0], args[1])
		},
	}
}

func runBranchSwitch(cmd *cobra.Command, repoID, branch string) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp(cmd.Context(), resolveProjectDir())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, ok := a.registry.Get(repoID)
	if !ok {
		return fmt.Errorf("no such repository: %s", repoID)
	}

	rec.DefaultBranch = branch
	if err := a.registry.Put(rec); err != nil {
		return fmt.Errorf("failed to persist branch switch: %w", err)
	}

	out.Successf("%s default branch set to %s, run 'codectx sync %s' to bring it up to date", repoID, branch, repoID)
	return nil
}
