// Package config loads and validates the optional .compilerun YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file looked up by Load.
const FileName = ".compilerun"

// Default values for runner configuration.
const (
	DefaultShell     = "/bin/sh -c"
	DefaultMaxOutput = 1 << 20 // 1 MB
	DefaultLogLevel  = logrus.WarnLevel
)

// Config holds the parsed .compilerun configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int         `yaml:"version"`
	RawShell     string      `yaml:"shell"`      // e.g. "/bin/bash -c"
	RawTimeout   string      `yaml:"timeout"`    // per step, e.g. "30s"; empty means none
	RawMaxOutput int         `yaml:"max_output"` // bytes of captured compile output kept
	RawLogLevel  string      `yaml:"log_level"`  // logrus level name
	Compile      PhaseConfig `yaml:"compile"`
	Run          PhaseConfig `yaml:"run"`
}

// PhaseConfig controls how one phase reacts to a failing step.
type PhaseConfig struct {
	FailFast *bool `yaml:"fail_fast"`
}

// Shell returns the argv prefix used to execute a command string.
// An unparsable or empty shell setting falls back to the default.
func (c *Config) Shell() []string {
	if c.RawShell != "" {
		argv, err := shellquote.Split(c.RawShell)
		if err == nil && len(argv) > 0 {
			return argv
		}
	}
	argv, _ := shellquote.Split(DefaultShell)
	return argv
}

// Timeout returns the configured per-step timeout. Zero means steps may
// run indefinitely.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// MaxOutputBytes returns the configured max captured output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// LogLevel returns the configured log level or the default.
func (c *Config) LogLevel() logrus.Level {
	if c.RawLogLevel != "" {
		lvl, err := logrus.ParseLevel(c.RawLogLevel)
		if err == nil {
			return lvl
		}
	}
	return DefaultLogLevel
}

// CompileFailFast reports whether a failing compile step aborts the job.
// Defaults to true.
func (c *Config) CompileFailFast() bool {
	if c.Compile.FailFast != nil {
		return *c.Compile.FailFast
	}
	return true
}

// RunFailFast reports whether a failing run step aborts the job.
// Defaults to false.
func (c *Config) RunFailFast() bool {
	if c.Run.FailFast != nil {
		return *c.Run.FailFast
	}
	return false
}

// LoadResult holds the parsed config and the file it came from.
type LoadResult struct {
	Config *Config
	Path   string // empty when no file was found
}

// Load looks for a .compilerun file in dir and its parents. The nearest
// file wins. If none exists, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return &LoadResult{Config: &Config{}}, nil
		}
		dir = parent
	}
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}
