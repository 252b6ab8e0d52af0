// Package config implements the Configuration component (C3): the
// name/value store, scanner enable/disable command list, and output
// directory used to construct a feature-recorder set and scanner set.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NoOutdir is the sentinel output directory that suppresses file
// creation and disables every recorder in a feature-recorder set.
const NoOutdir = ""

// AllScanners is the distinguished command target meaning "every
// scanner except those with NoAll set".
const AllScanners = "all"

// HashAlgorithm names a supported content-hash algorithm.
type HashAlgorithm string

const (
	MD5    HashAlgorithm = "md5"
	SHA1   HashAlgorithm = "sha1"
	SHA256 HashAlgorithm = "sha256"
)

// ParseHashAlgorithm normalizes a user-supplied algorithm name: matching
// is case-insensitive and tolerates an optional hyphen ("SHA-256",
// "sha256", "Sha1" all resolve).
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	norm := strings.ToLower(strings.ReplaceAll(s, "-", ""))
	switch norm {
	case "md5":
		return MD5, nil
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	default:
		return "", fmt.Errorf("config: unknown hash algorithm %q", s)
	}
}

// CommandAction is either Enable or Disable.
type CommandAction int

const (
	Enable CommandAction = iota
	Disable
)

// Command is one queued enable/disable directive. Scanner is either a
// specific scanner name or AllScanners.
type Command struct {
	Scanner string        `yaml:"scanner"`
	Action  CommandAction `yaml:"-"`
	ActionName string     `yaml:"action"`
}

// normalizeAction fills Action from ActionName after YAML unmarshal.
func (c *Command) normalizeAction() error {
	switch strings.ToLower(c.ActionName) {
	case "enable", "":
		c.Action = Enable
	case "disable":
		c.Action = Disable
	default:
		return fmt.Errorf("config: unknown command action %q", c.ActionName)
	}
	return nil
}

// Config is the Configuration component (C3).
type Config struct {
	InputFname            string            `yaml:"input_fname"`
	Outdir                string            `yaml:"outdir"`
	HashAlgorithm         HashAlgorithm     `yaml:"-"`
	HashAlgorithmRaw      string            `yaml:"hash_algorithm"`
	ContextWindowDefault  int               `yaml:"context_window_default"`
	ScannerOptions        map[string]string `yaml:"scanner_options"`
	Commands              []Command         `yaml:"commands"`
	MaxDepth              int               `yaml:"max_depth"`
	MaxNgram              int               `yaml:"max_ngram"`
	DupDataAlerts         bool              `yaml:"dup_data_alerts"`
	Pedantic              bool              `yaml:"pedantic"`
}

// New returns a Config with the documented defaults: sha1 hashing, a
// 16-byte context window, no max depth limit beyond a generous default,
// and no queued commands.
func New() *Config {
	return &Config{
		HashAlgorithm:        SHA1,
		ContextWindowDefault: 16,
		ScannerOptions:       map[string]string{},
		MaxDepth:             7,
		MaxNgram:             4,
	}
}

// Load reads a YAML configuration file, applying the same defaults as
// New for any field the file omits.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg := New()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if cfg.HashAlgorithmRaw != "" {
		algo, err := ParseHashAlgorithm(cfg.HashAlgorithmRaw)
		if err != nil {
			return nil, fmt.Errorf("config: %q: %w", path, err)
		}
		cfg.HashAlgorithm = algo
	}
	for i := range cfg.Commands {
		if err := cfg.Commands[i].normalizeAction(); err != nil {
			return nil, fmt.Errorf("config: %q: %w", path, err)
		}
	}
	return cfg, nil
}

// Save writes cfg back out as YAML, used mainly by tests and by tools
// that materialize a Config programmatically before handing it to a
// scanner set.
func Save(path string, cfg *Config) error {
	cfg.HashAlgorithmRaw = string(cfg.HashAlgorithm)
	for i := range cfg.Commands {
		if cfg.Commands[i].ActionName == "" {
			if cfg.Commands[i].Action == Disable {
				cfg.Commands[i].ActionName = "disable"
			} else {
				cfg.Commands[i].ActionName = "enable"
			}
		}
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}

// NoOutdirSet reports whether this configuration's output directory is
// the NoOutdir sentinel.
func (c *Config) NoOutdirSet() bool { return c.Outdir == NoOutdir }
