package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ModelConfig declares one servable model and its batch limits.
type ModelConfig struct {
	Name             string `json:"name" yaml:"name" toml:"name"`
	Family           string `json:"family" yaml:"family" toml:"family"`
	MaxBatchSize     int    `json:"max_batch_size" yaml:"max_batch_size" toml:"max_batch_size"`
	OptimalBatchSize int    `json:"optimal_batch_size" yaml:"optimal_batch_size" toml:"optimal_batch_size"`
	InputShape       []int  `json:"input_shape" yaml:"input_shape" toml:"input_shape"`
	OutputShape      []int  `json:"output_shape" yaml:"output_shape" toml:"output_shape"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr             string        `json:"addr" yaml:"addr" toml:"addr"`
	Workers          int           `json:"workers" yaml:"workers" toml:"workers"`
	DefaultTimeoutS  float64       `json:"default_timeout_s" yaml:"default_timeout_s" toml:"default_timeout_s"`
	MemoryLimitGB    float64       `json:"memory_limit_gb" yaml:"memory_limit_gb" toml:"memory_limit_gb"`
	StreamIsolation  *bool         `json:"stream_isolation" yaml:"stream_isolation" toml:"stream_isolation"`
	Monitoring       *bool         `json:"monitoring" yaml:"monitoring" toml:"monitoring"`
	MaxQueueDelayMs  float64       `json:"max_queue_delay_ms" yaml:"max_queue_delay_ms" toml:"max_queue_delay_ms"`
	MaxQueueSize     int           `json:"max_queue_size" yaml:"max_queue_size" toml:"max_queue_size"`
	SampleIntervalMs int           `json:"sample_interval_ms" yaml:"sample_interval_ms" toml:"sample_interval_ms"`
	DefaultModel     string        `json:"default_model" yaml:"default_model" toml:"default_model"`
	Models           []ModelConfig `json:"models" yaml:"models" toml:"models"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
