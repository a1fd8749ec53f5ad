// Package config holds the engine's runtime configuration: one explicit
// struct, populated from defaults, an optional YAML file, and SCRIBE_*
// environment overrides, then passed by constructor into each component.
// There is no global mutable state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scribeworks/scribe/internal/engine"
	"github.com/scribeworks/scribe/internal/finder"
	"github.com/scribeworks/scribe/internal/gate"
	"github.com/scribeworks/scribe/internal/merge"
	"github.com/scribeworks/scribe/internal/similarity"
)

// Config is the full engine configuration as it appears in scribe.yaml
type Config struct {
	// StorePath is the SQLite database file path. The special value
	// ":memory:" keeps everything in process.
	StorePath string `yaml:"store_path"`

	// Mode selects a gate threshold preset: "default", "strict", or
	// "aggressive". Explicit thresholds below override the preset.
	Mode string `yaml:"mode"`

	// SimilarityThreshold and MergeThreshold override the preset when > 0
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MergeThreshold      float64 `yaml:"merge_threshold"`

	// MaxMatches caps candidates considered per decision
	MaxMatches int `yaml:"max_matches"`

	// MaxScanSize caps the degraded-mode fallback scan
	MaxScanSize int `yaml:"max_scan_size"`

	// IndexTimeoutSecs bounds each vector index search
	IndexTimeoutSecs int `yaml:"index_timeout_secs"`

	// RecencyHalfLifeDays tunes relevance re-ranking decay
	RecencyHalfLifeDays int `yaml:"recency_half_life_days"`

	// ConfidenceConflictDelta is the merge conflict threshold for
	// confidence swings. Pointer so an explicit 0 (flag every swing) is
	// distinguishable from unset.
	ConfidenceConflictDelta *float64 `yaml:"confidence_conflict_delta"`

	// MaxConcurrentIngests bounds the ingest worker pool
	MaxConcurrentIngests int `yaml:"max_concurrent_ingests"`

	// MaxConflictRetries bounds decide-and-merge retries after concurrent
	// modification. Pointer so an explicit 0 (fail on first conflict) is
	// distinguishable from unset.
	MaxConflictRetries *int `yaml:"max_conflict_retries"`

	// EmbeddingDim sizes the hashing embedder; 0 disables the vector index
	// entirely (permanent degraded mode)
	EmbeddingDim int `yaml:"embedding_dim"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		StorePath:            ".scribe/scribe.db",
		Mode:                 "default",
		MaxMatches:           10,
		MaxScanSize:          1000,
		IndexTimeoutSecs:     5,
		RecencyHalfLifeDays:  30,
		MaxConcurrentIngests: 4,
		EmbeddingDim:         256,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv layers SCRIBE_* environment variables over the current values
//
// Environment variables:
//   - SCRIBE_STORE_PATH: SQLite database path
//   - SCRIBE_MODE: gate preset (default/strict/aggressive)
//   - SCRIBE_SIMILARITY_THRESHOLD, SCRIBE_MERGE_THRESHOLD
//   - SCRIBE_MAX_MATCHES, SCRIBE_MAX_SCAN_SIZE
//   - SCRIBE_INDEX_TIMEOUT_SECS, SCRIBE_RECENCY_HALF_LIFE_DAYS
//   - SCRIBE_CONFIDENCE_CONFLICT_DELTA
//   - SCRIBE_MAX_CONCURRENT_INGESTS, SCRIBE_MAX_CONFLICT_RETRIES
//   - SCRIBE_EMBEDDING_DIM
func (c *Config) applyEnv() error {
	if v := os.Getenv("SCRIBE_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("SCRIBE_MODE"); v != "" {
		c.Mode = v
	}
	if err := parseEnvFloat("SCRIBE_SIMILARITY_THRESHOLD", &c.SimilarityThreshold); err != nil {
		return err
	}
	if err := parseEnvFloat("SCRIBE_MERGE_THRESHOLD", &c.MergeThreshold); err != nil {
		return err
	}
	if err := parseEnvInt("SCRIBE_MAX_MATCHES", &c.MaxMatches); err != nil {
		return err
	}
	if err := parseEnvInt("SCRIBE_MAX_SCAN_SIZE", &c.MaxScanSize); err != nil {
		return err
	}
	if err := parseEnvInt("SCRIBE_INDEX_TIMEOUT_SECS", &c.IndexTimeoutSecs); err != nil {
		return err
	}
	if err := parseEnvInt("SCRIBE_RECENCY_HALF_LIFE_DAYS", &c.RecencyHalfLifeDays); err != nil {
		return err
	}
	if err := parseEnvFloatPtr("SCRIBE_CONFIDENCE_CONFLICT_DELTA", &c.ConfidenceConflictDelta); err != nil {
		return err
	}
	if err := parseEnvInt("SCRIBE_MAX_CONCURRENT_INGESTS", &c.MaxConcurrentIngests); err != nil {
		return err
	}
	if err := parseEnvIntPtr("SCRIBE_MAX_CONFLICT_RETRIES", &c.MaxConflictRetries); err != nil {
		return err
	}
	if err := parseEnvInt("SCRIBE_EMBEDDING_DIM", &c.EmbeddingDim); err != nil {
		return err
	}
	return nil
}

// Validate checks cross-field consistency; per-component ranges are checked
// by each component's own config
func (c Config) Validate() error {
	switch c.Mode {
	case "default", "strict", "aggressive":
	default:
		return fmt.Errorf("mode must be default, strict, or aggressive (got %q)", c.Mode)
	}
	if c.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}
	if c.EmbeddingDim < 0 {
		return fmt.Errorf("embedding_dim cannot be negative (got %d)", c.EmbeddingDim)
	}
	return nil
}

// GateConfig resolves the gate preset plus overrides
func (c Config) GateConfig() gate.Config {
	var gc gate.Config
	switch c.Mode {
	case "strict":
		gc = gate.StrictConfig()
	case "aggressive":
		gc = gate.AggressiveConfig()
	default:
		gc = gate.DefaultConfig()
	}
	if c.SimilarityThreshold > 0 {
		gc.SimilarityThreshold = c.SimilarityThreshold
	}
	if c.MergeThreshold > 0 {
		gc.MergeThreshold = c.MergeThreshold
	}
	if c.MaxMatches > 0 {
		gc.MaxMatches = c.MaxMatches
	}
	return gc
}

// FinderConfig maps onto the finder's knobs
func (c Config) FinderConfig() finder.Config {
	fc := finder.DefaultConfig()
	if c.MaxScanSize > 0 {
		fc.MaxScanSize = c.MaxScanSize
	}
	if c.IndexTimeoutSecs > 0 {
		fc.IndexTimeout = time.Duration(c.IndexTimeoutSecs) * time.Second
	}
	if c.RecencyHalfLifeDays > 0 {
		fc.RecencyHalfLife = time.Duration(c.RecencyHalfLifeDays) * 24 * time.Hour
	}
	return fc
}

// MergeConfig maps onto the merger's knobs. Nil means "component default";
// an explicit zero is honored.
func (c Config) MergeConfig() merge.Config {
	mc := merge.DefaultConfig()
	if c.ConfidenceConflictDelta != nil {
		mc.ConfidenceConflictDelta = *c.ConfidenceConflictDelta
	}
	return mc
}

// EngineConfig maps onto the engine's knobs. Nil retries means "component
// default"; an explicit zero (fail on first conflict) is honored.
func (c Config) EngineConfig() engine.Config {
	ec := engine.DefaultConfig()
	if c.MaxConcurrentIngests > 0 {
		ec.MaxConcurrentIngests = c.MaxConcurrentIngests
	}
	if c.MaxConflictRetries != nil {
		ec.MaxConflictRetries = *c.MaxConflictRetries
	}
	return ec
}

// IndexConfig maps onto the in-memory index's knobs
func (c Config) IndexConfig() similarity.IndexConfig {
	return similarity.DefaultIndexConfig()
}

// Embedder returns the configured embedder, or nil when the vector index is
// disabled
func (c Config) Embedder() similarity.Embedder {
	if c.EmbeddingDim <= 0 {
		return nil
	}
	return &similarity.HashingEmbedder{Dim: c.EmbeddingDim}
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloatPtr parses a float64 from an environment variable into a
// presence-tracking pointer field
func parseEnvFloatPtr(key string, dest **float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = &parsed
	return nil
}

// parseEnvIntPtr parses an int from an environment variable into a
// presence-tracking pointer field
func parseEnvIntPtr(key string, dest **int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = &parsed
	return nil
}
