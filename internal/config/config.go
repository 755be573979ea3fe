// Package config parses the match engine's configuration surface from HCL,
// falling back to documented defaults when no file is present.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete, decoded configuration surface.
type Config struct {
	Match   MatchSettings   `hcl:"match,block"`
	Sandbox SandboxSettings `hcl:"sandbox,block"`
	Archive ArchiveSettings `hcl:"archive,block"`
	Storage StorageSettings `hcl:"storage,block"`
}

// MatchSettings controls stakes, timing, and table shape.
type MatchSettings struct {
	Seats                  int `hcl:"seats,optional"`
	StartingStackUnits     int `hcl:"starting_stack_units,optional"`
	SmallBlindUnits        int `hcl:"small_blind_units,optional"`
	BigBlindUnits          int `hcl:"big_blind_units,optional"`
	HandIntervalSeconds    int `hcl:"hand_interval_seconds,optional"`
	DecisionTimeoutSeconds int `hcl:"decision_timeout_seconds,optional"`
}

// SandboxSettings bounds the bot runtime.
type SandboxSettings struct {
	Backend              string `hcl:"backend,optional"` // "in_process" | "subprocess"
	MaxStateBytes        int    `hcl:"max_state_bytes,optional"`
	MemoryLimitBytes     int64  `hcl:"memory_limit_bytes,optional"`
	CPUSeconds           int    `hcl:"cpu_seconds,optional"`
	MaxInProcessWorkers  int    `hcl:"max_in_process_workers,optional"`
}

// ArchiveSettings bounds bot archive intake.
type ArchiveSettings struct {
	MaxUploadBytes              int64 `hcl:"max_upload_bytes,optional"`
	MaxArchiveMembers           int   `hcl:"max_archive_members,optional"`
	MaxArchiveFileBytes         int64 `hcl:"max_archive_file_bytes,optional"`
	MaxArchiveUncompressedBytes int64 `hcl:"max_archive_uncompressed_bytes,optional"`
	MaxBotSourceBytes           int64 `hcl:"max_bot_source_bytes,optional"`
	MaxRequirementsBytes        int64 `hcl:"max_requirements_bytes,optional"`
}

// StorageSettings controls where hand history text files land.
type StorageSettings struct {
	HandsDir string `hcl:"hands_dir,optional"`
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		Match: MatchSettings{
			Seats:                  6,
			StartingStackUnits:     10000,
			SmallBlindUnits:        50,
			BigBlindUnits:          100,
			HandIntervalSeconds:    1,
			DecisionTimeoutSeconds: 2,
		},
		Sandbox: SandboxSettings{
			Backend:             "in_process",
			MaxStateBytes:        64 * 1024,
			MemoryLimitBytes:     256 * 1024 * 1024,
			CPUSeconds:           3, // ceil(decisionTimeoutSeconds) + 1
			MaxInProcessWorkers:  4,
		},
		Archive: ArchiveSettings{
			MaxUploadBytes:              10 * 1024 * 1024,
			MaxArchiveMembers:           128,
			MaxArchiveFileBytes:         1 * 1024 * 1024,
			MaxArchiveUncompressedBytes: 2 * 1024 * 1024,
			MaxBotSourceBytes:           256 * 1024,
			MaxRequirementsBytes:        32 * 1024,
		},
		Storage: StorageSettings{
			HandsDir: "hands",
		},
	}
}

// Load reads and decodes an HCL configuration file, applying defaults for
// any field left zero-valued. If filename does not exist, Load returns the
// documented defaults unchanged (matching the teacher's config-loading
// behavior of never failing on a missing file).
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse HCL file %s: %s", filename, diags.Error())
	}

	cfg := Default()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode HCL file %s: %s", filename, diags.Error())
	}

	return cfg, nil
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.Match.Seats < 2 || c.Match.Seats > 6 {
		return fmt.Errorf("match.seats must be between 2 and 6, got %d", c.Match.Seats)
	}
	if c.Match.SmallBlindUnits <= 0 {
		return fmt.Errorf("match.small_blind_units must be positive")
	}
	if c.Match.BigBlindUnits <= c.Match.SmallBlindUnits {
		return fmt.Errorf("match.big_blind_units must exceed small_blind_units")
	}
	if c.Match.StartingStackUnits <= 0 {
		return fmt.Errorf("match.starting_stack_units must be positive")
	}
	switch c.Sandbox.Backend {
	case "in_process", "subprocess":
	default:
		return fmt.Errorf("sandbox.backend must be 'in_process' or 'subprocess', got %q", c.Sandbox.Backend)
	}
	if c.Sandbox.MaxInProcessWorkers <= 0 {
		return fmt.Errorf("sandbox.max_in_process_workers must be positive")
	}
	if c.Archive.MaxArchiveFileBytes > c.Archive.MaxArchiveUncompressedBytes {
		return fmt.Errorf("archive.max_archive_file_bytes must not exceed max_archive_uncompressed_bytes")
	}
	return nil
}
