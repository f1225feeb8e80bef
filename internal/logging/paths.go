package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.codectx/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codectx", "logs")
	}
	return filepath.Join(home, ".codectx", "logs")
}

// DefaultLogPath returns the default indexer log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "codectx.log")
}

// SyncLogPath returns the path looked up for a dedicated sync log (sync.log).
// No codectx command opens a writer on this path.
func SyncLogPath() string {
	return filepath.Join(DefaultLogDir(), "sync.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceCore is the main indexer/query process log (default).
	LogSourceCore LogSource = "core"
	// LogSourceSync is the sync orchestrator log.
	LogSourceSync LogSource = "sync"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.codectx/logs/codectx.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. codectx may not have run yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceCore:
		corePath := DefaultLogPath()
		checked = append(checked, corePath)
		if _, err := os.Stat(corePath); err == nil {
			paths = append(paths, corePath)
		}

	case LogSourceSync:
		syncPath := SyncLogPath()
		checked = append(checked, syncPath)
		if _, err := os.Stat(syncPath); err == nil {
			paths = append(paths, syncPath)
		}

	case LogSourceAll:
		corePath := DefaultLogPath()
		syncPath := SyncLogPath()
		checked = append(checked, corePath, syncPath)

		if _, err := os.Stat(corePath); err == nil {
			paths = append(paths, corePath)
		}
		if _, err := os.Stat(syncPath); err == nil {
			paths = append(paths, syncPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: core, sync, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "sync":
		return LogSourceSync
	case "all":
		return LogSourceAll
	default:
		return LogSourceCore
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceCore:
		return "To generate core logs:\n  codectx --debug sync <repo-id>"
	case LogSourceSync:
		return "No codectx command writes a separate sync log; sync runs log to the core log (codectx.log)."
	case LogSourceAll:
		return "To generate logs, run any codectx subcommand with --debug."
	default:
		return ""
	}
}
