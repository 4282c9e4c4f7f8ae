package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"cdcreader/internal/spec"
)

const SupportedSchema = "v1"

// LoadTaskSpec parses a task file (YAML, or TOML by .toml suffix), validates
// schema_version, and returns the parsed file and an absolute path to the
// reader config (if set).
func LoadTaskSpec(path string) (spec.File, string, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(raw, &cfg)
	default:
		err = yaml.Unmarshal(raw, &cfg)
	}
	if err != nil {
		return cfg, "", fmt.Errorf("task %s: %w", path, err)
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, "", fmt.Errorf("task schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	if cfg.Task.ID == "" {
		return cfg, "", errors.New("task.id required")
	}
	for i, s := range cfg.Sinks {
		if s.Driver == "" {
			return cfg, "", fmt.Errorf("sinks[%d]: driver required", i)
		}
		if s.Name == "" {
			cfg.Sinks[i].Name = s.Driver
		}
	}
	confPath := cfg.Reader.Config
	if confPath != "" && !filepath.IsAbs(confPath) {
		confPath = filepath.Join(filepath.Dir(path), confPath)
	}
	if confPath != "" {
		if confPath, err = filepath.Abs(confPath); err != nil {
			return cfg, "", err
		}
	}
	return cfg, confPath, nil
}
