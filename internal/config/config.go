// Package config loads and validates the YAML configuration for the
// orchestration core. Configuration errors are fatal at startup.
package config

import (
	"fmt"
)

// Config is the root configuration document.
type Config struct {
	// Server configures the HTTP surface (metrics, health).
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures OpenTelemetry export.
	Tracing TracingConfig `yaml:"tracing"`

	// Models lists the configured model candidates.
	Models []ModelCandidate `yaml:"models"`

	// Prompts configures the prompt template store.
	Prompts PromptsConfig `yaml:"prompts"`

	// Knowledge configures the document and vector stores.
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Ingest configures the continuous ingestion engine.
	Ingest IngestConfig `yaml:"ingest"`

	// Workspace is the root directory file tools may touch.
	Workspace string `yaml:"workspace"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8090".
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig configures OTLP trace export. Empty endpoint disables it.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// PromptsConfig configures prompt template loading.
type PromptsConfig struct {
	// Dir holds template YAML files overriding the embedded defaults.
	Dir string `yaml:"dir"`

	// Watch reloads templates when files under Dir change.
	Watch bool `yaml:"watch"`
}

// KnowledgeConfig configures persistence.
type KnowledgeConfig struct {
	// SQLitePath is the document store database file. Empty selects the
	// in-memory store (tests, ephemeral runs).
	SQLitePath string `yaml:"sqlite_path"`

	// VectorDir is the chromem persistence directory. Empty keeps vectors
	// in memory only.
	VectorDir string `yaml:"vector_dir"`
}

// Validate checks the whole document, collecting the first error found.
func (c *Config) Validate() error {
	if err := validateModels(c.Models); err != nil {
		return fmt.Errorf("models: %w", err)
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Workspace == "" {
		c.Workspace = "."
	}
	return nil
}
