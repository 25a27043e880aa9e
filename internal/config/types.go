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

// Package config types define the configuration structures used throughout
// telraam-relay. These types represent settings that can be loaded from
// YAML configuration files, environment variables, or command-line flags.
package config

import "time"

// Config represents the complete configuration for telraam-relay.
type Config struct {
	Telraam TelraamConfig `yaml:"telraam"`
	Traffic TrafficConfig `yaml:"traffic"`
	Retry   RetryConfig   `yaml:"retry"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Output  OutputConfig  `yaml:"output"`
}

// TelraamConfig describes where the API lives and how to authenticate.
// The token itself is never stored in a file; TokenEnv names the variable
// it is read from.
type TelraamConfig struct {
	BaseURL   string        `yaml:"base_url" validate:"required,url"`
	Version   string        `yaml:"version" validate:"required"`
	TokenEnv  string        `yaml:"token_env" validate:"required"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	UserAgent string        `yaml:"user_agent"`
}

// TrafficConfig holds the limits the traffic endpoint imposes. Both are
// owned by the service and may change, so neither is hardcoded.
type TrafficConfig struct {
	MaxSpan     time.Duration `yaml:"max_span" validate:"gt=0"`
	Granularity string        `yaml:"granularity" validate:"required"`
	Level       string        `yaml:"level" validate:"oneof=segments instance"`
}

// RetryConfig controls per-chunk retries.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" validate:"gte=1,lte=20"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" validate:"gte=0"`
	MaxBackoff        time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
	Multiplier        float64       `yaml:"multiplier" validate:"gte=1"`
	RetryableStatuses []int         `yaml:"retryable_statuses" validate:"dive,gte=400,lte=599"`
}

// FetchConfig controls how chunks are scheduled.
type FetchConfig struct {
	Concurrency       int     `yaml:"concurrency" validate:"gte=1,lte=16"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// OutputConfig controls result and metadata files.
type OutputConfig struct {
	Format      string `yaml:"format" validate:"oneof=ndjson json"`
	MetadataDir string `yaml:"metadata_dir"`
}

// DefaultConfig returns a Config with the public API's current limits.
func DefaultConfig() *Config {
	return &Config{
		Telraam: TelraamConfig{
			BaseURL:  "https://telraam-api.net",
			Version:  "v1",
			TokenEnv: "TELRAAM_TOKEN",
			Timeout:  30 * time.Second,
		},
		Traffic: TrafficConfig{
			MaxSpan:     90 * 24 * time.Hour,
			Granularity: "per-hour",
			Level:       "segments",
		},
		Retry: RetryConfig{
			MaxAttempts:       4,
			InitialBackoff:    time.Second,
			MaxBackoff:        30 * time.Second,
			Multiplier:        2.0,
			RetryableStatuses: []int{429, 502, 503, 504},
		},
		Fetch: FetchConfig{
			Concurrency: 1,
		},
		Output: OutputConfig{
			Format:      "ndjson",
			MetadataDir: "~/.telraam-relay/metadata",
		},
	}
}
