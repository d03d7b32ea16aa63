// Package config holds the process-level settings the CLI binds from
// flags and validates before any engine runs: where the catalog database
// lives, how the logger is configured, and the closed enumerations the
// clone subcommands accept. A plain struct with an explicit
// field-by-field Validate method returning wrapped errors; no env/flag
// binding library beneath it.
package config

import (
	"fmt"
	"strings"
)

// Config holds the settings shared by every mahzen-engine subcommand.
type Config struct {
	DBPath   string // path to the catalog's SQLite file
	LogLevel string // "debug"|"info"|"warn"|"error"
	LogJSON  bool   // structured JSON logs instead of console output
	TempDir  string // scratch directory for cross-target clone staging
}

// Validate ensures the settings every subcommand depends on are usable
// before the catalog store or any engine is constructed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("database path is required")
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}

	return nil
}

// ConflictPolicies is the closed set clone_start accepts for its
// conflict policy flag, per the data model's conflict_policy enumeration.
var ConflictPolicies = map[string]bool{
	"overwrite":        true,
	"skip":             true,
	"overwriteIfNewer": true,
}

// ValidateConflictPolicy rejects any value outside the data model's
// closed conflict_policy enumeration before a clone job is ever created.
func ValidateConflictPolicy(policy string) error {
	if !ConflictPolicies[policy] {
		return fmt.Errorf("conflict policy must be one of overwrite, skip, overwriteIfNewer, got %q", policy)
	}
	return nil
}
