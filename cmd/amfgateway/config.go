package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mtrqq/amf/pkg/gateway"
	"gopkg.in/yaml.v3"
)

var errInvalidConfig = errors.New("invalid config")

type storeConfig struct {
	Dir      string `yaml:"dir"`
	Capacity int    `yaml:"capacity"`
}

type config struct {
	Listen      string      `yaml:"listen"`
	Path        string      `yaml:"path"`
	MetricsPath string      `yaml:"metrics_path"`
	CrossDomain string      `yaml:"cross_domain"`
	MaxBodySize int64       `yaml:"max_body_size"`
	Encodings   []string    `yaml:"encodings"`
	Namespace   string      `yaml:"namespace"`
	LogLevel    string      `yaml:"log_level"`
	Store       storeConfig `yaml:"store"`
}

func defaultConfig() config {
	return config{
		Listen:      "127.0.0.1:8080",
		Path:        "/gateway",
		MetricsPath: "/metrics",
		MaxBodySize: gateway.DefaultMaxBodySize,
		Namespace:   "amf",
		LogLevel:    "info",
	}
}

func (c *config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is empty", errInvalidConfig)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("%w: gateway path %q must start with /", errInvalidConfig, c.Path)
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("%w: metrics path %q must start with /", errInvalidConfig, c.MetricsPath)
	}
	if c.MetricsPath == c.Path {
		return fmt.Errorf("%w: gateway and metrics share path %q", errInvalidConfig, c.Path)
	}
	if c.Store.Capacity < 0 {
		return fmt.Errorf("%w: negative store capacity", errInvalidConfig)
	}
	return nil
}

// loadConfig reads path over the defaults. An empty path keeps the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: %v", errInvalidConfig, err)
	}

	return cfg, cfg.validate()
}
