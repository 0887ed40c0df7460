// Package config loads the yaml configuration for the fortress binaries.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/fortresskit/fortress/pkg/ingest"
)

type Config struct {
	DigestBytes   int    `yaml:"digestBytes"`
	ChunkSize     int64  `yaml:"chunkSize"`
	CheckInterval int    `yaml:"checkIntervalSeconds"`
	StorePath     string `yaml:"storePath"`
	LogLevel      string `yaml:"logLevel"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DigestBytes: 64,
		ChunkSize:   ingest.DefaultChunkSize,
		LogLevel:    "info",
	}
}

// Load reads a yaml config file and fills unset values with defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	def := Default()
	if conf.DigestBytes == 0 {
		conf.DigestBytes = def.DigestBytes
	}
	if conf.ChunkSize == 0 {
		conf.ChunkSize = def.ChunkSize
	}
	if conf.LogLevel == "" {
		conf.LogLevel = def.LogLevel
	}
	return conf, nil
}
