// Package config loads an optional per-project settings file and merges it
// with command-line flags for the pb2proto CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileName is the default project config file name, looked up in the
// current working directory.
const FileName = ".pb2proto.yaml"

// Config holds the subset of settings a project file may override. Zero
// values mean "not set"; Merge only copies a flag's value over a config
// value when that flag value is non-empty (or true).
type Config struct {
	OutputDir string   `yaml:"output_dir"`
	Blacklist []string `yaml:"blacklist"`
	Verbose   bool     `yaml:"verbose"`
}

// Load reads and parses a project config file. A missing file is not an
// error: it returns a zero-value Config so callers can merge unconditionally.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Merge overlays flag-provided values on top of the file config. Flags win:
// a non-empty/non-false flag value always takes precedence, since cobra
// already resolved its own defaults before this is called.
func Merge(fileCfg Config, outputDir string, blacklist []string, verbose bool) Config {
	merged := fileCfg
	if outputDir != "" {
		merged.OutputDir = outputDir
	}
	if len(blacklist) > 0 {
		merged.Blacklist = blacklist
	}
	if verbose {
		merged.Verbose = true
	}
	return merged
}
