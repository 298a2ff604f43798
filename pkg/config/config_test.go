package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, ModelClaudeSonnet, cfg.DefaultModel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "server:\n  addr: \":9090\"\ndefault_model: claude-sonnet-4-5\nmodels:\n  claude-sonnet-4-5:\n    name: claude-sonnet-4-5\n    provider: anthropic\n    max_context_tokens: 200000\n    max_output_tokens: 8192\n"
	require.NoError(t, writeFile(path, yamlBody))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoadRejectsUnknownDefaultModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "default_model: does-not-exist\nmodels:\n  claude-sonnet-4-5:\n    name: claude-sonnet-4-5\n"
	require.NoError(t, writeFile(path, yamlBody))

	_, err := Load(path)
	require.Error(t, err)
}

func TestModelConfigForFallsBackToDefault(t *testing.T) {
	cfg := Default()
	m, err := ModelConfigFor(cfg, "")
	require.NoError(t, err)
	require.Equal(t, cfg.DefaultModel, m.Name)

	_, err = ModelConfigFor(cfg, "nonexistent")
	require.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
