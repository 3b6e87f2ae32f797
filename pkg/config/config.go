// Copyright 2026 Stageflow Authors
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

// Package config defines the application configuration and its loader.
// Config files are YAML or JSON with ${VAR} environment expansion.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	ContextStore ContextStoreConfig `yaml:"context_store"`
	Scenarios    ScenariosConfig    `yaml:"scenarios"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Logger       LoggerConfig       `yaml:"logger"`
}

// LLMConfig configures the chat provider and the conversation loop.
type LLMConfig struct {
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url"`
	SupportedModels []string `yaml:"supported_models"`
	OrganizationID  string   `yaml:"organization_id"`
	ProjectID       string   `yaml:"project_id"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`

	AllowParallelToolCalls bool `yaml:"allow_parallel_tool_calls"`
}

// ContextStoreConfig selects and tunes the session-state backend.
type ContextStoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`

	KeyPrefix       string        `yaml:"key_prefix"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	DefaultMaxTurns int           `yaml:"default_max_turns"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ScenariosConfig configures scenario loading.
type ScenariosConfig struct {
	// Paths are directories scanned for scenario definition files.
	Paths []string `yaml:"paths"`

	// Watch reloads the registry when a scenario file changes.
	Watch bool `yaml:"watch"`
}

// KnowledgeConfig configures the embedded knowledge store.
type KnowledgeConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Collection  string `yaml:"collection"`
	PersistPath string `yaml:"persist_path"`
	Compress    bool   `yaml:"compress"`
}

// LoggerConfig configures structured logging.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SetDefaults fills zero values with working defaults.
func (c *Config) SetDefaults() {
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}

	if c.ContextStore.Backend == "" {
		c.ContextStore.Backend = "memory"
	}
	if c.ContextStore.KeyPrefix == "" {
		c.ContextStore.KeyPrefix = "stageflow"
	}
	if c.ContextStore.DefaultTTL == 0 {
		c.ContextStore.DefaultTTL = 24 * time.Hour
	}
	if c.ContextStore.DefaultMaxTurns == 0 {
		c.ContextStore.DefaultMaxTurns = 50
	}
	if c.ContextStore.Backend == "redis" && c.ContextStore.Redis.Addr == "" {
		c.ContextStore.Redis.Addr = "localhost:6379"
	}

	if c.Knowledge.Enabled && c.Knowledge.Collection == "" {
		c.Knowledge.Collection = "knowledge"
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "simple"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if len(c.LLM.SupportedModels) == 0 {
		return fmt.Errorf("llm.supported_models cannot be empty")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm.timeout_seconds must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}

	switch c.ContextStore.Backend {
	case "memory":
	case "redis":
		if c.ContextStore.Redis.Addr == "" {
			return fmt.Errorf("context_store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown context_store.backend %q (want memory or redis)", c.ContextStore.Backend)
	}
	if c.ContextStore.DefaultTTL <= 0 {
		return fmt.Errorf("context_store.default_ttl must be positive")
	}
	if c.ContextStore.DefaultMaxTurns <= 0 {
		return fmt.Errorf("context_store.default_max_turns must be positive")
	}

	if len(c.Scenarios.Paths) == 0 {
		return fmt.Errorf("scenarios.paths cannot be empty")
	}

	if c.Knowledge.Enabled && c.Knowledge.Collection == "" {
		return fmt.Errorf("knowledge.collection is required when knowledge is enabled")
	}

	return nil
}
