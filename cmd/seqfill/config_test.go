package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readConfigFile(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, yaml.Unmarshal(data, &m))
	return m
}

func TestRunConfigSet_WritesOnlyGivenSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqfill.yaml")

	require.NoError(t, runConfigSet(path, "workers", "4"))
	require.NoError(t, runConfigSet(path, "output.format", "duckdb"))
	require.NoError(t, runConfigSet(path, "cache.manifest", "off"))

	assert.Equal(t, map[string]any{
		"workers": 4,
		"output":  map[string]any{"format": "duckdb"},
		"cache":   map[string]any{"manifest": false},
	}, readConfigFile(t, path))
}

func TestRunConfigSet_DropsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqfill.yaml")
	require.NoError(t, os.WriteFile(path, []byte("verbose: true\nworkers: 2\nlegacy:\n  option: x\n"), 0644))

	require.NoError(t, runConfigSet(path, "log.level", "DEBUG"))

	assert.Equal(t, map[string]any{
		"workers": 2,
		"log":     map[string]any{"level": "debug"},
	}, readConfigFile(t, path))
}

func TestRunConfigSet_Rejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown key", "verbose", "true"},
		{"unknown format", "output.format", "parquet"},
		{"zero workers", "workers", "0"},
		{"non-numeric workers", "workers", "many"},
		{"bad level", "log.level", "loud"},
		{"bad bool", "cache.manifest", "maybe"},
		{"empty dir", "cache.dir", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seqfill.yaml")

			err := runConfigSet(path, tt.key, tt.value)
			var ue *usageError
			require.True(t, errors.As(err, &ue), "got %v", err)
			assert.NoFileExists(t, path)
		})
	}
}

func TestRun_ConfigSetExitCodes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "seqfill.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	assert.Equal(t, ExitSuccess, run([]string{"--config", path, "config", "set", "cache.dir", "/data/refs"}))
	assert.Equal(t, ExitUsage, run([]string{"--config", path, "config", "set", "output.format", "parquet"}))
	assert.Equal(t, ExitUsage, run([]string{"--config", path, "config", "get", "verbose"}))

	assert.Equal(t, map[string]any{
		"cache": map[string]any{"dir": "/data/refs"},
	}, readConfigFile(t, path))
}
