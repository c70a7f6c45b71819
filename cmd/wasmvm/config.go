package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmvm/interp"
	"github.com/wippyai/wasmvm/runtime"
)

// fileConfig is the YAML form of the runtime limits.
type fileConfig struct {
	MaxCallDepth   int    `yaml:"max_call_depth"`
	MaxMemoryPages uint32 `yaml:"max_memory_pages"`
	MaxTableSize   uint32 `yaml:"max_table_size"`
	Fuel           uint64 `yaml:"fuel"`
	CacheSize      int    `yaml:"cache_size"`
}

func defaultConfig() fileConfig {
	return fileConfig{
		MaxCallDepth: interp.DefaultMaxCallDepth,
		CacheSize:    runtime.DefaultCacheSize,
	}
}

func loadConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config: %w", err)
	}
	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.MaxCallDepth < 0 {
		return fileConfig{}, fmt.Errorf("parse config %s: max_call_depth must not be negative", path)
	}
	return cfg, nil
}

func (c fileConfig) interp() interp.Config {
	return interp.Config{
		MaxCallDepth:   c.MaxCallDepth,
		MaxMemoryPages: c.MaxMemoryPages,
		MaxTableSize:   c.MaxTableSize,
		Fuel:           c.Fuel,
	}
}

func (c fileConfig) runtimeOptions() []runtime.Option {
	return []runtime.Option{
		runtime.WithConfig(c.interp()),
		runtime.WithCacheSize(c.CacheSize),
	}
}
