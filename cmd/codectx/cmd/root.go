// Package cmd provides the CLI commands for codectx.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/logging"
	"github.com/codectx/codectx/pkg/version"
)

var (
	projectDir     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codectx CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "codectx",
		Short:   "Multi-tenant semantic code search over git repositories",
		Version: version.Version,
		Long: `codectx clones and indexes git repositories, chunking source files by
syntax, embedding the chunks, and serving hybrid dense/sparse semantic
search over the result.`,
	}

	cmd.SetVersionTemplate("codectx version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "Project directory to read .codectx.yaml from")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newRepoCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newBranchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func resolveProjectDir() string {
	if projectDir != "" && projectDir != "." {
		return projectDir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
