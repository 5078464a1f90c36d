package config

import (
	"fmt"
	"strings"
	"time"
)

// IngestConfig configures the continuous ingestion engine.
type IngestConfig struct {
	// Enabled starts the engine supervisor with the service.
	Enabled bool `yaml:"enabled"`

	// StartupDelay postpones the first poll cycle. Defaults to 60s.
	StartupDelay time.Duration `yaml:"startup_delay"`

	// SweepSchedule is a cron expression for the full-space pass that
	// transitions vanished items to REMOVED. Defaults to hourly.
	SweepSchedule string `yaml:"sweep_schedule"`

	// Connections lists the configured source accounts.
	Connections []ConnectionConfig `yaml:"connections"`
}

// ConnectionConfig is one external source account.
type ConnectionConfig struct {
	// ID is the stable connection identifier.
	ID string `yaml:"id"`

	// Kind is the source family: "email", "wiki", or "tracker".
	Kind string `yaml:"kind"`

	// ClientID scopes ingested material for retrieval filtering.
	ClientID string `yaml:"client_id"`

	// ProjectID optionally narrows the scope.
	ProjectID string `yaml:"project_id"`

	// BaseURL is the root endpoint of the external system.
	BaseURL string `yaml:"base_url"`

	// Scopes are the spaces, folders, or project keys to poll.
	Scopes []string `yaml:"scopes"`

	// TokenEnv names the environment variable with the API credential.
	TokenEnv string `yaml:"token_env"`
}

// Validate applies defaults and rejects malformed connections.
func (c *IngestConfig) Validate() error {
	if c.StartupDelay <= 0 {
		c.StartupDelay = time.Minute
	}
	if strings.TrimSpace(c.SweepSchedule) == "" {
		c.SweepSchedule = "@hourly"
	}
	seen := map[string]bool{}
	for i, conn := range c.Connections {
		if strings.TrimSpace(conn.ID) == "" {
			return fmt.Errorf("connection %d: id is required", i)
		}
		if seen[conn.ID] {
			return fmt.Errorf("connection %d: duplicate id %q", i, conn.ID)
		}
		seen[conn.ID] = true
		switch conn.Kind {
		case "email", "wiki", "tracker":
		default:
			return fmt.Errorf("connection %q: unknown kind %q", conn.ID, conn.Kind)
		}
		if strings.TrimSpace(conn.BaseURL) == "" {
			return fmt.Errorf("connection %q: base_url is required", conn.ID)
		}
		if strings.TrimSpace(conn.ClientID) == "" {
			return fmt.Errorf("connection %q: client_id is required", conn.ID)
		}
	}
	return nil
}
