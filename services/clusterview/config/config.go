// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the cluster view service configuration.
//
// Configuration is layered: the embedded default_config.yaml, then an
// optional YAML file, then CLUSTERVIEW_* environment variables. The result
// is validated with validator struct tags.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/AleutianAI/clusterview/pkg/logging"
	"github.com/AleutianAI/clusterview/services/clusterview/budget"
	"github.com/AleutianAI/clusterview/services/clusterview/layout"
	"github.com/AleutianAI/clusterview/services/clusterview/mdl"
	"github.com/AleutianAI/clusterview/services/clusterview/telemetry"
	"github.com/AleutianAI/clusterview/services/clusterview/view"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigYAML []byte

// MaxFileSize bounds configuration files read from disk.
const MaxFileSize = 1 << 20

// Environment variables read by Load.
const (
	EnvConfigPath      = "CLUSTERVIEW_CONFIG"
	EnvAddr            = "CLUSTERVIEW_ADDR"
	EnvMode            = "CLUSTERVIEW_MODE"
	EnvArtifact        = "CLUSTERVIEW_ARTIFACT"
	EnvCacheMaxEntries = "CLUSTERVIEW_CACHE_MAX_ENTRIES"
	EnvLogLevel        = "CLUSTERVIEW_LOG_LEVEL"
	EnvLogJSON         = "CLUSTERVIEW_LOG_JSON"
)

var (
	// ErrInvalid indicates the merged configuration failed validation.
	ErrInvalid = errors.New("invalid configuration")

	// ErrFileTooLarge indicates a configuration file above MaxFileSize.
	ErrFileTooLarge = errors.New("configuration file too large")
)

var validate = validator.New()

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server" validate:"required"`
	Artifact  ArtifactConfig   `yaml:"artifact" validate:"required"`
	Budget    budget.Config    `yaml:"budget"`
	MDL       mdl.Config       `yaml:"mdl"`
	Layout    layout.Options   `yaml:"layout"`
	Cache     CacheConfig      `yaml:"cache"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	Mode            string        `yaml:"mode" validate:"oneof=debug release test"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// ArtifactConfig locates the dendrogram artifact.
type ArtifactConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// CacheConfig sizes the view cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" validate:"gte=1"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// Default returns the embedded defaults without file or environment
// overrides.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parse embedded config: %w", err)
	}
	return &cfg, nil
}

// Load builds the configuration.
//
// Description:
//
//	Starts from the embedded defaults, overlays path (or the file named by
//	CLUSTERVIEW_CONFIG when path is empty), applies CLUSTERVIEW_*
//	environment overrides and validates the result. Keys absent from the
//	file keep their defaults.
//
// Inputs:
//
//	path - Optional YAML file.
//
// Outputs:
//
//	*Config - The merged configuration.
//	error - Read, parse or validation failure. Validation errors wrap
//	        ErrInvalid.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and the component configs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.MDL.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Model returns the view model tunables.
func (c *Config) Model() view.ModelConfig {
	return view.ModelConfig{Budget: c.Budget, MDL: c.MDL, Layout: c.Layout}
}

// LoggerConfig returns the pkg/logging configuration for service.
func (c *Config) LoggerConfig(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:   level,
		Service: service,
		JSON:    c.Logging.JSON,
		LogDir:  c.Logging.Dir,
	}, nil
}

func (c *Config) applyEnv() error {
	c.Server.Addr = getEnvOr(EnvAddr, c.Server.Addr)
	c.Server.Mode = getEnvOr(EnvMode, c.Server.Mode)
	c.Artifact.Path = getEnvOr(EnvArtifact, c.Artifact.Path)
	c.Logging.Level = getEnvOr(EnvLogLevel, c.Logging.Level)

	if v := os.Getenv(EnvCacheMaxEntries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheMaxEntries, err)
		}
		c.Cache.MaxEntries = n
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogJSON, err)
		}
		c.Logging.JSON = b
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFileTooLarge, abs, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	return data, nil
}

// getEnvOr returns the environment variable value or the fallback.
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
