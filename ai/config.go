// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for the synchronous embedding service.
type Config struct {
	// Host is the base URL of the embedding service API.
	// Example: "https://api.openai.com/v1"
	Host string

	// Model is the embedding model identifier.
	// Example: "text-embedding-3-small"
	Model string

	// APIKey authenticates against the service. Local OpenAI-compatible
	// servers accept any non-empty value.
	APIKey string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets the embedding service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithAPIKey sets the service credential.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// DefaultConfig returns a Config pointed at the public service with a small
// general-purpose embedding model.
func DefaultConfig() *Config {
	return &Config{
		Host:   "https://api.openai.com/v1",
		Model:  "text-embedding-3-small",
		APIKey: "none",
	}
}

// NewConfig creates a Config with defaults and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("embedding host is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("embedding model is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("embedding API key is required")
	}
	return nil
}
