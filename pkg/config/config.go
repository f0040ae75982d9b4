// Package config is Strata's engine-wide configuration: the knobs that
// govern a database (access mode, durability mode, WAL/checkpoint/
// vector thresholds), loadable from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stratadb/strata/pkg/snapshot"
	"github.com/stratadb/strata/pkg/vector"
	"github.com/stratadb/strata/pkg/wal"
)

// AccessMode gates whether a database accepts mutating commands.
type AccessMode string

const (
	ReadWrite AccessMode = "read_write"
	ReadOnly  AccessMode = "read_only"
)

// HNSWDefaults holds the vector.hnsw.{m,ef_construction,ef_search}
// knobs applied to any collection a caller creates without overriding
// them.
type HNSWDefaults struct {
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`
}

// Config is a single database's full configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`

	AccessMode AccessMode `yaml:"access_mode"`

	Durability wal.Config `yaml:"durability"`

	Checkpoint snapshot.CheckpointPolicy `yaml:"checkpoint"`

	HNSW HNSWDefaults `yaml:"vector_hnsw"`
}

// Default returns the stock defaults: ReadWrite access, Standard
// durability, and the stock checkpoint/HNSW thresholds.
func Default(dataDir string) Config {
	return Config{
		DataDir:    dataDir,
		AccessMode: ReadWrite,
		Durability: wal.DefaultConfig(),
		Checkpoint: snapshot.DefaultCheckpointPolicy(),
		HNSW: HNSWDefaults{
			M:              vector.DefaultM,
			EfConstruction: vector.DefaultEfConstruction,
			EfSearch:       vector.DefaultEfSearch,
		},
	}
}

// Load reads a YAML config file at path, filling unset fields from
// Default(dataDir).
func Load(path, dataDir string) (Config, error) {
	cfg := Default(dataDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a Config whose thresholds cannot be honored.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errConfigf("data_dir must not be empty")
	}
	if c.AccessMode != ReadWrite && c.AccessMode != ReadOnly {
		return errConfigf("access_mode must be read_write or read_only, got %q", c.AccessMode)
	}
	if err := c.Durability.Validate(); err != nil {
		return err
	}
	if c.HNSW.M <= 0 || c.HNSW.EfConstruction <= 0 || c.HNSW.EfSearch <= 0 {
		return errConfigf("vector_hnsw parameters must be positive")
	}
	return nil
}

func errConfigf(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Error is config's validation error type.
type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }
