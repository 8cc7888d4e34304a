package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	// DataDir is the badger directory. Ignored when InMemory is set.
	DataDir       string `yaml:"dataDir"`
	InMemory      bool   `yaml:"inMemory"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`
	LogLevel      string `yaml:"logLevel"`
	NoColor       bool   `yaml:"noColor"`
	// MetricsAddr serves /metrics when not empty.
	MetricsAddr string `yaml:"metricsAddr"`
	Workers     int    `yaml:"workers"`
}

func Default() Config {
	return Config{
		DataDir:       "./ledger-data",
		MinimumFreeGB: 1,
		LogLevel:      "info",
		Workers:       4,
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) { // A
	config := Default()
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", path, err)
	}
	if config.DataDir == "" && !config.InMemory {
		return config, fmt.Errorf("config %s: dataDir is required unless inMemory is set", path)
	}
	if config.Workers < 1 {
		config.Workers = Default().Workers
	}
	return config, nil
}
