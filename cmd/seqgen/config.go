package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig holds the optional YAML config file supplying defaults for
// the run command. Pointer fields distinguish "not set" from zero.
type fileConfig struct {
	Model     string `yaml:"model"`
	Tokenizer string `yaml:"tokenizer"`
	Vocab     *int64 `yaml:"vocab"`
	MaxTokens *int64 `yaml:"max_tokens"`
	Samples   *int64 `yaml:"samples"`
	Seed      *int64 `yaml:"seed"`
	StopText  string `yaml:"stop_text"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
