package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/wal"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default(t.TempDir())
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, config.ReadWrite, cfg.AccessMode)
}

func TestValidate_RejectsEmptyDataDir(t *testing.T) {
	cfg := config.Default("")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_dir")
}

func TestValidate_RejectsUnknownAccessMode(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.AccessMode = config.AccessMode("bogus")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_mode")
}

func TestValidate_RejectsNonPositiveHNSWParameters(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.HNSW.M = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector_hnsw")
}

func TestValidate_PropagatesDurabilityError(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Durability.Mode = wal.Standard
	cfg.Durability.BatchSize = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_OverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	require.NoError(t, os.WriteFile(path, []byte("access_mode: read_only\n"), 0o644))

	cfg, err := config.Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, config.ReadOnly, cfg.AccessMode)
	assert.Equal(t, dir, cfg.DataDir, "fields absent from the YAML file keep Default's values")
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), t.TempDir())
	assert.Error(t, err)
}
