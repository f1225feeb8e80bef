package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/output"
	"github.com/codectx/codectx/internal/progress"
	"github.com/codectx/codectx/internal/query"
)

type searchOptions struct {
	repoID      string
	branch      string
	tenantID    string
	limit       int
	language    string
	elementType string
	showCode    bool
	format      string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic code search over a registered repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.repoID, "repo", "", "Repository ID to search (required)")
	cmd.Flags().StringVar(&opts.branch, "branch", "", "Branch to search (defaults to the repository's default branch)")
	cmd.Flags().StringVar(&opts.tenantID, "tenant", "", "Requesting tenant ID (defaults to the configured default tenant)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language")
	cmd.Flags().StringVar(&opts.elementType, "element-type", "", "Filter by element type (function, class, struct, method, enum, interface, trait, type, module, heading, text, other)")
	cmd.Flags().BoolVar(&opts.showCode, "show-code", false, "Include full chunk content in results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func runSearch(cmd *cobra.Command, queryText string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	a, err := newApp(cmd.Context(), resolveProjectDir())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, ok := a.registry.Get(opts.repoID)
	if !ok {
		return fmt.Errorf("no such repository: %s", opts.repoID)
	}
	branch := opts.branch
	if branch == "" {
		branch = rec.DefaultBranch
	}

	collName := a.collectionName(rec.TenantID, rec.ID, branch)
	if err := a.loadCollection(collName); err != nil {
		return fmt.Errorf("repository %s/%s hasn't been indexed yet: %w", opts.repoID, branch, err)
	}

	start := time.Now()
	results, err := a.planner.Search(cmd.Context(), query.Request{
		TenantID:    opts.tenantID,
		RepoID:      opts.repoID,
		Branch:      branch,
		Query:       queryText,
		TopK:        opts.limit,
		Language:    opts.language,
		ElementType: opts.elementType,
		ShowCode:    opts.showCode,
	})
	latency := time.Since(start)
	a.reporter.PublishQuery(progress.QueryReport{TenantID: opts.tenantID, Latency: latency, ResultCount: len(results)})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		out.Status("", "no results")
		return nil
	}
	for i, r := range results {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s:%d-%d  score=%.4f  %s/%s\n    %s\n",
			i+1, r.FilePath, r.StartLine, r.EndLine, r.Score, r.Language, r.ElementType, r.Preview)
		if opts.showCode && r.Content != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", r.Content)
		}
	}
	return nil
}
