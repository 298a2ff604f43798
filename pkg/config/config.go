// Package config provides configuration loading and management for appgen.
//
// Configuration is loaded once at startup from a YAML file with environment
// variable overrides, then held as a single global instance protected by a
// mutex. Updates go through Load; GetConfig returns a copy so callers never
// mutate shared state directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentSchemaVersion must be bumped whenever the Config shape changes in a
// way that would break an existing config file on disk.
const CurrentSchemaVersion = 1

// Known model identifiers. Token counting and provider dispatch key off
// these constants rather than raw strings scattered through the codebase.
const (
	ModelClaudeSonnet = "claude-sonnet-4-5"
	ModelClaudeOpus   = "claude-opus-4-1"
	ModelOpenAIGPT4o  = "gpt-4o"
	ModelOpenAIGPT4oM = "gpt-4o-mini"
)

// ModelCfg describes a single inference model's limits and routing.
type ModelCfg struct {
	Name             string  `yaml:"name" json:"name"`
	Provider         string  `yaml:"provider" json:"provider"` // "anthropic" | "openai"
	MaxContextTokens int     `yaml:"max_context_tokens" json:"max_context_tokens"`
	MaxOutputTokens  int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	Temperature      float32 `yaml:"temperature" json:"temperature"`
}

// RateLimitCfg bounds the abstract quota gate fronting the HTTP surface.
type RateLimitCfg struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int `yaml:"burst" json:"burst"`
}

// ServerCfg controls the control-plane HTTP/WebSocket listener.
type ServerCfg struct {
	Addr               string        `yaml:"addr" json:"addr"`
	WebSocketConnectTO time.Duration `yaml:"websocket_connect_timeout" json:"websocket_connect_timeout"`
	DeployTimeout      time.Duration `yaml:"deploy_timeout" json:"deploy_timeout"`
}

// Config is the root configuration object.
//
//nolint:govet // logical field grouping preferred over alignment
type Config struct {
	SchemaVersion int                 `yaml:"schema_version" json:"schema_version"`
	Server        ServerCfg           `yaml:"server" json:"server"`
	RateLimit     RateLimitCfg        `yaml:"rate_limit" json:"rate_limit"`
	Models        map[string]ModelCfg `yaml:"models" json:"models"`
	DefaultModel  string              `yaml:"default_model" json:"default_model"`
	DataDir       string              `yaml:"data_dir" json:"data_dir"`
}

//nolint:gochecknoglobals // intentional singleton, protected by mu
var (
	current *Config
	mu      sync.RWMutex
)

// Default returns a Config populated with sensible defaults, used when no
// config file is present and as the base that file/env values override.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		Server: ServerCfg{
			Addr:               ":8080",
			WebSocketConnectTO: 30 * time.Second,
			DeployTimeout:      60 * time.Second,
		},
		RateLimit: RateLimitCfg{
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Models: map[string]ModelCfg{
			ModelClaudeSonnet: {
				Name: ModelClaudeSonnet, Provider: "anthropic",
				MaxContextTokens: 200_000, MaxOutputTokens: 8192, Temperature: 0.7,
			},
			ModelOpenAIGPT4o: {
				Name: ModelOpenAIGPT4o, Provider: "openai",
				MaxContextTokens: 128_000, MaxOutputTokens: 4096, Temperature: 0.7,
			},
		},
		DefaultModel: ModelClaudeSonnet,
		DataDir:      "./data",
	}
}

// Load reads a YAML config file, falling back to Default() for any field
// the file omits, then applies environment overrides, and installs the
// result as the process-wide config.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// No file: defaults only.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("APPGEN_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if dir := os.Getenv("APPGEN_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if rpm := os.Getenv("APPGEN_RATE_LIMIT_RPM"); rpm != "" {
		if v, err := strconv.Atoi(rpm); err == nil {
			cfg.RateLimit.RequestsPerMinute = v
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if len(cfg.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	if _, ok := cfg.Models[cfg.DefaultModel]; !ok {
		return fmt.Errorf("default_model %q is not in models", cfg.DefaultModel)
	}
	return nil
}

// GetConfig returns a copy of the current process-wide config. Callers must
// not rely on its identity; mutate via Load (startup) only.
func GetConfig() (*Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	cp := *current
	return &cp, nil
}

// ModelConfigFor looks up the named model, falling back to the configured
// default model when name is empty.
func ModelConfigFor(cfg *Config, name string) (ModelCfg, error) {
	if name == "" {
		name = cfg.DefaultModel
	}
	m, ok := cfg.Models[name]
	if !ok {
		return ModelCfg{}, fmt.Errorf("unknown model %q", name)
	}
	return m, nil
}
