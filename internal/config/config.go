// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides configuration management for telraam-relay with
// support for multiple configuration sources and a well-defined precedence
// order.
//
// Configuration sources (in precedence order, highest to lowest):
//  1. Command-line flags
//  2. Environment variables (including those loaded from .env)
//  3. Configuration file
//  4. Built-in defaults
//
// The service-owned limits of the traffic endpoint, the maximum span of one
// request and the bucket granularity, live here rather than in code.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from multiple sources and applies them in
// the correct precedence order. If configPath is provided, it loads from
// that specific file. Otherwise, it searches standard locations:
//   - .telraam-relay.yaml (current directory)
//   - .telraam-relay.yml (current directory)
//   - ~/.telraam-relay/config.yaml
//
// Environment variables are applied after loading the config file. The
// result is not validated; call Validate once flags have been applied.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		defaultPaths := []string{
			".telraam-relay.yaml",
			".telraam-relay.yml",
			filepath.Join(os.Getenv("HOME"), ".telraam-relay", "config.yaml"),
		}

		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				if err := loadConfigFile(path, cfg); err != nil {
					return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
				}
				break
			}
		}
	}

	applyEnvOverrides(cfg)

	cfg.Output.MetadataDir = expandPath(cfg.Output.MetadataDir)

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no paths it tries ./.env.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// loadConfigFile reads and parses a YAML config file
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Unparseable values are ignored and the file or default value stands.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("TELRAAM_API_URL"); url != "" {
		cfg.Telraam.BaseURL = url
	}
	if version := os.Getenv("TELRAAM_API_VERSION"); version != "" {
		cfg.Telraam.Version = version
	}

	if span := os.Getenv("TELRAAM_MAX_SPAN"); span != "" {
		if d, err := ParseSpan(span); err == nil {
			cfg.Traffic.MaxSpan = d
		}
	}

	if concurrency := os.Getenv("TELRAAM_CONCURRENCY"); concurrency != "" {
		if n, err := parsePositiveInt(concurrency); err == nil {
			cfg.Fetch.Concurrency = n
		}
	}
	if attempts := os.Getenv("TELRAAM_MAX_ATTEMPTS"); attempts != "" {
		if n, err := parsePositiveInt(attempts); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}

	if dir := os.Getenv("TELRAAM_METADATA_DIR"); dir != "" {
		cfg.Output.MetadataDir = dir
	}
}

// trafficFile mirrors TrafficConfig with max_span kept as text, so the file
// accepts the same "90d" form as the flag and the environment.
type trafficFile struct {
	MaxSpan     string `yaml:"max_span"`
	Granularity string `yaml:"granularity"`
	Level       string `yaml:"level"`
}

// UnmarshalYAML decodes the traffic section, parsing max_span with ParseSpan.
// Keys absent from the file keep their current values.
func (t *TrafficConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := trafficFile{Granularity: t.Granularity, Level: t.Level}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxSpan != "" {
		span, err := ParseSpan(raw.MaxSpan)
		if err != nil {
			return fmt.Errorf("traffic.max_span: %w", err)
		}
		t.MaxSpan = span
	}
	t.Granularity = raw.Granularity
	t.Level = raw.Level
	return nil
}

// ParseSpan parses a positive duration. Besides time.ParseDuration syntax
// it accepts a whole number of days such as "90d".
func ParseSpan(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := parsePositiveInt(days)
		if err != nil {
			return 0, fmt.Errorf("invalid span %q: %w", s, err)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid span %q: %w", s, err)
		}
		d = parsed
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid span %q: must be positive", s)
	}
	return d, nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home := os.Getenv("HOME")
		if home == "" {
			home = os.Getenv("USERPROFILE") // Windows
		}
		path = filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// parsePositiveInt parses a string to a positive integer
func parsePositiveInt(s string) (int, error) {
	var i int
	_, err := fmt.Sscanf(s, "%d", &i)
	if err != nil {
		return 0, fmt.Errorf("failed to parse integer from '%s': %w", s, err)
	}
	if i <= 0 {
		return 0, fmt.Errorf("value must be positive, got: %d", i)
	}
	return i, nil
}

// Endpoint returns the versioned API root, e.g. https://telraam-api.net/v1.
func (c *Config) Endpoint() string {
	base := strings.TrimRight(c.Telraam.BaseURL, "/")
	version := strings.Trim(c.Telraam.Version, "/")
	if version == "" {
		return base
	}
	return base + "/" + version
}

// Token returns the API token from the environment variable named by
// Telraam.TokenEnv, or "" when it is unset.
func (c *Config) Token() string {
	return strings.TrimSpace(os.Getenv(c.Telraam.TokenEnv))
}

var validate = validator.New()

// Validate checks every field against its constraints. It should be called
// after flags have been applied so that bad flag values are caught as well.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
