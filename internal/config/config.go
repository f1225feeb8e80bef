package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// AppConfig is the complete codectx configuration: hardcoded defaults,
// overridden by the user/global config, overridden by the project config,
// overridden by CODECTX_* environment variables.
type AppConfig struct {
	Version    int              `yaml:"version" json:"version"`
	Tenancy    TenancyConfig    `yaml:"tenancy" json:"tenancy"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Vocabulary VocabularyConfig `yaml:"vocabulary" json:"vocabulary"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Sync       SyncConfig       `yaml:"sync" json:"sync"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Submodules SubmoduleConfig  `yaml:"submodules" json:"submodules"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// TenancyConfig controls multi-tenant isolation.
type TenancyConfig struct {
	// Enabled turns on tenant_id enforcement. When false every request
	// is treated as the DefaultTenant.
	Enabled       bool   `yaml:"enabled" json:"enabled" envconfig:"TENANCY_ENABLED"`
	DefaultTenant string `yaml:"default_tenant" json:"default_tenant" envconfig:"DEFAULT_TENANT"`
	// CollectionPrefix is prepended to every derived collection name,
	// letting one vector-store instance host several codectx deployments.
	CollectionPrefix string `yaml:"collection_prefix" json:"collection_prefix" envconfig:"COLLECTION_PREFIX"`
}

// PathsConfig configures which paths to include and exclude during
// file processing.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
	// MaxFileSizeBytes skips files larger than this (0 = no limit).
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" json:"max_file_size_bytes"`
	Workers          int   `yaml:"workers" json:"workers" envconfig:"FILE_WORKERS"`
}

// ChunkingConfig configures the syntax chunker.
type ChunkingConfig struct {
	MaxChunkLines  int `yaml:"max_chunk_lines" json:"max_chunk_lines"`
	MinChunkLines  int `yaml:"min_chunk_lines" json:"min_chunk_lines"`
	OverlapLines   int `yaml:"overlap_lines" json:"overlap_lines"`
	FallbackWindow int `yaml:"fallback_window" json:"fallback_window"`
}

// VocabularyConfig configures the persistent tokenizer/vocabulary.
type VocabularyConfig struct {
	StoragePath string `yaml:"storage_path" json:"storage_path"`
	MaxTokens   int    `yaml:"max_tokens" json:"max_tokens"`
}

// EmbeddingsConfig configures the embedding provider and pool.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider" envconfig:"EMBEDDINGS_PROVIDER"`
	Model      string `yaml:"model" json:"model" envconfig:"EMBEDDINGS_MODEL"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// PoolSize bounds concurrent embedding sessions (semaphore.Weighted).
	PoolSize   int           `yaml:"pool_size" json:"pool_size"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host" envconfig:"OLLAMA_HOST"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// StoreConfig configures the vector store connection and upsert concurrency
//.
type StoreConfig struct {
	Endpoint           string `yaml:"endpoint" json:"endpoint" envconfig:"STORE_ENDPOINT"`
	UpsertConcurrency  int    `yaml:"upsert_concurrency" json:"upsert_concurrency"`
	UpsertBatchSize    int    `yaml:"upsert_batch_size" json:"upsert_batch_size"`
	OnDiskVectors      bool   `yaml:"on_disk_vectors" json:"on_disk_vectors"`
	HNSWM              int    `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" json:"hnsw_ef_construction"`
}

// SyncConfig configures the sync orchestrator.
type SyncConfig struct {
	QueueSize       int    `yaml:"queue_size" json:"queue_size"`
	LockDir         string `yaml:"lock_dir" json:"lock_dir"`
	RetryMax        int    `yaml:"retry_max" json:"retry_max"`
	RetryBaseDelay  string `yaml:"retry_base_delay" json:"retry_base_delay"`
	CheckpointEvery int    `yaml:"checkpoint_every" json:"checkpoint_every"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Debounce string `yaml:"debounce" json:"debounce"`
}

// SubmoduleConfig configures git submodule discovery during repository
// preparation.
type SubmoduleConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Recursive bool     `yaml:"recursive" json:"recursive"`
	Include   []string `yaml:"include" json:"include"`
	Exclude   []string `yaml:"exclude" json:"exclude"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level" envconfig:"LOG_LEVEL"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// defaultExcludePatterns are always excluded from file processing.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// envPrefix namespaces every environment variable consumed by envconfig.Process.
const envPrefix = "CODECTX"

// NewConfig returns an AppConfig populated with sensible defaults.
func NewConfig() *AppConfig {
	return &AppConfig{
		Version: 1,
		Tenancy: TenancyConfig{
			Enabled:          false,
			DefaultTenant:    "default",
			CollectionPrefix: "codectx_",
		},
		Paths: PathsConfig{
			Include:          []string{},
			Exclude:          defaultExcludePatterns,
			MaxFileSizeBytes: 2 << 20, // 2MiB
			Workers:          runtime.NumCPU(),
		},
		Chunking: ChunkingConfig{
			MaxChunkLines:  120,
			MinChunkLines:  4,
			OverlapLines:   0,
			FallbackWindow: 60,
		},
		Vocabulary: VocabularyConfig{
			StoragePath: defaultVocabPath(),
			MaxTokens:   1 << 20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // empty selects ollama; there is no automatic fallback to static
			Model:      "nomic-embed-text",
			Dimensions: 0, // auto-detect from provider
			BatchSize:  32,
			PoolSize:   4,
			OllamaHost: "",
			Timeout:    30 * time.Second,
		},
		Store: StoreConfig{
			Endpoint:           "",
			UpsertConcurrency:  4,
			UpsertBatchSize:    128,
			OnDiskVectors:      false,
			HNSWM:              16,
			HNSWEfConstruction: 200,
		},
		Sync: SyncConfig{
			QueueSize:       256,
			LockDir:         defaultLockDir(),
			RetryMax:        3,
			RetryBaseDelay:  "2s",
			CheckpointEvery: 500,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: "500ms",
		},
		Submodules: SubmoduleConfig{
			Enabled:   false,
			Recursive: true,
		},
		Logging: LoggingConfig{
			Level:         "info",
			FilePath:      "",
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
	}
}

func defaultVocabPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codectx", "vocab.bin")
	}
	return filepath.Join(home, ".codectx", "vocab.bin")
}

func defaultLockDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codectx", "locks")
	}
	return filepath.Join(home, ".codectx", "locks")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/codectx/config.yaml
//   - ~/.config/codectx/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codectx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codectx", "config.yaml")
	}
	return filepath.Join(home, ".config", "codectx", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*AppConfig, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load resolves configuration with increasing precedence:
//  1. hardcoded defaults
//  2. user/global config (~/.config/codectx/config.yaml)
//  3. project config (.codectx.yaml in dir)
//  4. CODECTX_* environment variables
func Load(dir string) (*AppConfig, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *AppConfig) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codectx.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".codectx.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *AppConfig) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed AppConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero fields from other into c. Only fields that were
// actually set in a YAML document survive this pass, since yaml.Unmarshal
// leaves everything else at its Go zero value.
func (c *AppConfig) mergeWith(other *AppConfig) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Tenancy.Enabled {
		c.Tenancy.Enabled = other.Tenancy.Enabled
	}
	if other.Tenancy.DefaultTenant != "" {
		c.Tenancy.DefaultTenant = other.Tenancy.DefaultTenant
	}
	if other.Tenancy.CollectionPrefix != "" {
		c.Tenancy.CollectionPrefix = other.Tenancy.CollectionPrefix
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Paths.MaxFileSizeBytes != 0 {
		c.Paths.MaxFileSizeBytes = other.Paths.MaxFileSizeBytes
	}
	if other.Paths.Workers != 0 {
		c.Paths.Workers = other.Paths.Workers
	}

	if other.Chunking.MaxChunkLines != 0 {
		c.Chunking.MaxChunkLines = other.Chunking.MaxChunkLines
	}
	if other.Chunking.MinChunkLines != 0 {
		c.Chunking.MinChunkLines = other.Chunking.MinChunkLines
	}
	if other.Chunking.OverlapLines != 0 {
		c.Chunking.OverlapLines = other.Chunking.OverlapLines
	}
	if other.Chunking.FallbackWindow != 0 {
		c.Chunking.FallbackWindow = other.Chunking.FallbackWindow
	}

	if other.Vocabulary.StoragePath != "" {
		c.Vocabulary.StoragePath = other.Vocabulary.StoragePath
	}
	if other.Vocabulary.MaxTokens != 0 {
		c.Vocabulary.MaxTokens = other.Vocabulary.MaxTokens
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.PoolSize != 0 {
		c.Embeddings.PoolSize = other.Embeddings.PoolSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	if other.Store.Endpoint != "" {
		c.Store.Endpoint = other.Store.Endpoint
	}
	if other.Store.UpsertConcurrency != 0 {
		c.Store.UpsertConcurrency = other.Store.UpsertConcurrency
	}
	if other.Store.UpsertBatchSize != 0 {
		c.Store.UpsertBatchSize = other.Store.UpsertBatchSize
	}
	if other.Store.OnDiskVectors {
		c.Store.OnDiskVectors = other.Store.OnDiskVectors
	}
	if other.Store.HNSWM != 0 {
		c.Store.HNSWM = other.Store.HNSWM
	}
	if other.Store.HNSWEfConstruction != 0 {
		c.Store.HNSWEfConstruction = other.Store.HNSWEfConstruction
	}

	if other.Sync.QueueSize != 0 {
		c.Sync.QueueSize = other.Sync.QueueSize
	}
	if other.Sync.LockDir != "" {
		c.Sync.LockDir = other.Sync.LockDir
	}
	if other.Sync.RetryMax != 0 {
		c.Sync.RetryMax = other.Sync.RetryMax
	}
	if other.Sync.RetryBaseDelay != "" {
		c.Sync.RetryBaseDelay = other.Sync.RetryBaseDelay
	}
	if other.Sync.CheckpointEvery != 0 {
		c.Sync.CheckpointEvery = other.Sync.CheckpointEvery
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if other.Submodules.Enabled {
		c.Submodules.Enabled = other.Submodules.Enabled
	}
	if len(other.Submodules.Include) > 0 || len(other.Submodules.Exclude) > 0 || other.Submodules.Enabled {
		c.Submodules.Recursive = other.Submodules.Recursive
	}
	if len(other.Submodules.Include) > 0 {
		c.Submodules.Include = other.Submodules.Include
	}
	if len(other.Submodules.Exclude) > 0 {
		c.Submodules.Exclude = other.Submodules.Exclude
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// Validate checks invariants the rest of the pipeline assumes hold.
func (c *AppConfig) Validate() error {
	if c.Tenancy.DefaultTenant == "" {
		return fmt.Errorf("tenancy.default_tenant must not be empty")
	}
	if c.Embeddings.Provider != "" {
		valid := map[string]bool{"ollama": true, "static": true}
		if !valid[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'ollama', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}
	if c.Embeddings.PoolSize < 1 {
		return fmt.Errorf("embeddings.pool_size must be at least 1, got %d", c.Embeddings.PoolSize)
	}
	if c.Store.UpsertConcurrency < 1 {
		return fmt.Errorf("store.upsert_concurrency must be at least 1, got %d", c.Store.UpsertConcurrency)
	}
	if c.Chunking.MaxChunkLines <= 0 {
		return fmt.Errorf("chunking.max_chunk_lines must be positive, got %d", c.Chunking.MaxChunkLines)
	}
	if c.Chunking.MinChunkLines < 0 || c.Chunking.MinChunkLines > c.Chunking.MaxChunkLines {
		return fmt.Errorf("chunking.min_chunk_lines must be between 0 and max_chunk_lines, got %d", c.Chunking.MinChunkLines)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *AppConfig) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, returning nil, nil if
// it doesn't exist.
func LoadUserConfig() (*AppConfig, error) {
	return loadUserConfig()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
