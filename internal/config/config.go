// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// educhat engine.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. File location: ~/.educhat/config.toml, falling back to the
// built-in defaults when absent.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/educhat/internal/imaging"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete engine configuration.
type Config struct {
	Backend     BackendConfig     `toml:"backend"`
	Attachments AttachmentsConfig `toml:"attachments"`
	Compression CompressionConfig `toml:"compression"`
	Persistence PersistenceConfig `toml:"persistence"`
}

// BackendConfig selects the remote model endpoint.
type BackendConfig struct {
	// BaseURL is the production endpoint.
	BaseURL string `toml:"base_url"`
	// LocalBaseURL is the development endpoint selected by UseLocal.
	LocalBaseURL string `toml:"local_base_url"`
	// UseLocal switches to LocalBaseURL.
	UseLocal bool `toml:"use_local"`
	// SessionTTLSeconds bounds the server-correlation session id;
	// 0 means never expire client-side (expiry is the backend's
	// best-effort cleanup).
	SessionTTLSeconds int `toml:"session_ttl_seconds"`
}

// AttachmentsConfig bounds the staged attachment set.
type AttachmentsConfig struct {
	// MaxImages is the staged-image cap (K).
	MaxImages int `toml:"max_images"`
	// MaxDocumentBytes is the single-document byte ceiling.
	MaxDocumentBytes int64 `toml:"max_document_bytes"`
}

// TierConfig parameterizes one compression tier.
type TierConfig struct {
	MaxWidth  int `toml:"max_width"`
	MaxHeight int `toml:"max_height"`
	Quality   int `toml:"quality"`
}

// CompressionConfig exposes the size-tiered compression policy. The
// three-tier shape is fixed; everything else is tunable.
type CompressionConfig struct {
	PassThroughBytes int64      `toml:"pass_through_bytes"`
	AggressiveBytes  int64      `toml:"aggressive_bytes"`
	Standard         TierConfig `toml:"standard"`
	Aggressive       TierConfig `toml:"aggressive"`
	Thumbnail        TierConfig `toml:"thumbnail"`
}

// PersistenceConfig bounds the persisted conversation records.
type PersistenceConfig struct {
	// MaxRecordBytes caps one serialized conversation (0 = uncapped).
	MaxRecordBytes int64 `toml:"max_record_bytes"`
	// TrimKeep is how many recent messages survive quota degradation.
	TrimKeep int `toml:"trim_keep"`
	// HistoryWindow bounds the turn window sent to the endpoint.
	HistoryWindow int `toml:"history_window"`
	// DatabasePath locates the SQLite store ("" = alongside the
	// config file).
	DatabasePath string `toml:"database_path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	policy := imaging.DefaultPolicy()
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "https://rag.eduassist.io",
			LocalBaseURL: "http://127.0.0.1:8000",
		},
		Attachments: AttachmentsConfig{
			MaxImages:        3,
			MaxDocumentBytes: 10 << 20,
		},
		Compression: CompressionConfig{
			PassThroughBytes: policy.PassThroughBytes,
			AggressiveBytes:  policy.AggressiveBytes,
			Standard:         TierConfig(policy.Standard),
			Aggressive:       TierConfig(policy.Aggressive),
			Thumbnail:        TierConfig(policy.Thumbnail),
		},
		Persistence: PersistenceConfig{
			MaxRecordBytes: 4 << 20,
			TrimKeep:       20,
			HistoryWindow:  10,
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// DefaultPath returns ~/.educhat/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".educhat", "config.toml"), nil
}

// Load reads configuration from path, layering file values and
// environment overrides over the defaults. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers EDUCHAT_* environment variables on top of
// the file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EDUCHAT_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("EDUCHAT_LOCAL_BASE_URL"); v != "" {
		cfg.Backend.LocalBaseURL = v
	}
	if v := os.Getenv("EDUCHAT_USE_LOCAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Backend.UseLocal = b
		}
	}
	if v := os.Getenv("EDUCHAT_DATABASE_PATH"); v != "" {
		cfg.Persistence.DatabasePath = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for values the engine cannot run
// with.
func (c *Config) Validate() error {
	if _, err := url.Parse(c.ResolveBaseURL()); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if c.Attachments.MaxImages <= 0 {
		return errors.New("attachments.max_images must be positive")
	}
	if c.Attachments.MaxDocumentBytes <= 0 {
		return errors.New("attachments.max_document_bytes must be positive")
	}
	if c.Compression.PassThroughBytes >= c.Compression.AggressiveBytes {
		return errors.New("compression.pass_through_bytes must be below aggressive_bytes")
	}
	for name, tier := range map[string]TierConfig{
		"standard":   c.Compression.Standard,
		"aggressive": c.Compression.Aggressive,
		"thumbnail":  c.Compression.Thumbnail,
	} {
		if tier.MaxWidth <= 0 || tier.MaxHeight <= 0 {
			return fmt.Errorf("compression.%s bounds must be positive", name)
		}
		if tier.Quality < 1 || tier.Quality > 100 {
			return fmt.Errorf("compression.%s.quality must be in 1..100", name)
		}
	}
	if c.Persistence.TrimKeep <= 0 {
		return errors.New("persistence.trim_keep must be positive")
	}
	if c.Persistence.HistoryWindow <= 0 {
		return errors.New("persistence.history_window must be positive")
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// ResolveBaseURL returns the endpoint selected by the environment
// toggle.
func (c *Config) ResolveBaseURL() string {
	if c.Backend.UseLocal {
		return c.Backend.LocalBaseURL
	}
	return c.Backend.BaseURL
}

// Policy converts the compression section into the imaging tier policy.
func (c *Config) Policy() imaging.Policy {
	return imaging.Policy{
		PassThroughBytes: c.Compression.PassThroughBytes,
		AggressiveBytes:  c.Compression.AggressiveBytes,
		Standard:         imaging.Options(c.Compression.Standard),
		Aggressive:       imaging.Options(c.Compression.Aggressive),
		Thumbnail:        imaging.Options(c.Compression.Thumbnail),
	}
}
