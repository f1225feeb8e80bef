package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/output"
	"github.com/codectx/codectx/internal/reporegistry"
	"github.com/codectx/codectx/internal/sync"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage registered repositories",
	}
	cmd.AddCommand(newRepoAddCmd())
	cmd.AddCommand(newRepoListCmd())
	cmd.AddCommand(newRepoRemoveCmd())
	return cmd
}

type repoAddOptions struct {
	id            string
	tenantID      string
	defaultBranch string
	localPath     string
}

func newRepoAddCmd() *cobra.Command {
	var opts repoAddOptions

	cmd := &cobra.Command{
		Use:   "add <remote-url>",
		Short: "Register a repository to sync and index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoAdd(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Repository ID (defaults to the remote's base name)")
	cmd.Flags().StringVar(&opts.tenantID, "tenant", "", "Owning tenant ID (defaults to the configured default tenant)")
	cmd.Flags().StringVar(&opts.defaultBranch, "branch", "", "Default branch to sync (defaults to the remote's HEAD)")
	cmd.Flags().StringVar(&opts.localPath, "local-path", "", "Local clone directory (defaults under the data directory)")

	return cmd
}

func runRepoAdd(cmd *cobra.Command, remoteURL string, opts repoAddOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp(cmd.Context(), resolveProjectDir())
	if err != nil {
		return err
	}
	defer a.Close()

	id := opts.id
	if id == "" {
		id = repoIDFromURL(remoteURL)
	}
	tenantID := opts.tenantID
	if tenantID == "" {
		tenantID = a.cfg.Tenancy.DefaultTenant
	}
	localPath := opts.localPath
	if localPath == "" {
		localPath = filepath.Join(a.dataDir, "repos", id)
	}

	rec := reporegistry.Record{
		ID:            id,
		TenantID:      tenantID,
		RemoteURL:     remoteURL,
		LocalPath:     localPath,
		DefaultBranch: opts.defaultBranch,
	}
	if err := a.registry.Put(rec); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	a.orchestrator.Register(sync.Repo{
		ID:            rec.ID,
		TenantID:      rec.TenantID,
		RemoteURL:     rec.RemoteURL,
		LocalPath:     rec.LocalPath,
		DefaultBranch: rec.DefaultBranch,
	})

	out.Successf("registered repository %q (tenant %q)", id, tenantID)
	out.Status("", fmt.Sprintf("run 'codectx sync %s' to clone and index it", id))
	return nil
}

func newRepoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoList(cmd)
		},
	}
}

func runRepoList(cmd *cobra.Command) error {
	a, err := newApp(cmd.Context(), resolveProjectDir())
	if err != nil {
		return err
	}
	defer a.Close()

	records := a.registry.List()
	if len(records) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no repositories registered")
		return nil
	}

	for _, rec := range records {
		state, _ := a.orchestrator.State(rec.ID)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-10s %-20s %s\n", rec.ID, string(state.State), rec.DefaultBranch, rec.RemoteURL)
	}
	return nil
}

func newRepoRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <repo-id>",
		Short: "Forget a registered repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoRemove(cmd, args[0])
		},
	}
}

func runRepoRemove(cmd *cobra.Command, id string) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp(cmd.Context(), resolveProjectDir())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.registry.Get(id); !ok {
		return fmt.Errorf("no such repository: %s", id)
	}
	if err := a.registry.Remove(id); err != nil {
		return fmt.Errorf("failed to remove repository: %w", err)
	}
	out.Successf("removed repository %q from the registry (local clone left on disk)", id)
	return nil
}

// repoIDFromURL derives a default repository ID from the last path
// segment of a remote URL, stripping a trailing ".git".
func repoIDFromURL(remoteURL string) string {
	base := filepath.Base(remoteURL)
	if ext := filepath.Ext(base); ext == ".git" {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." || base == string(os.PathSeparator) {
		return "repo"
	}
	return base
}
