package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
)

// FileName is the per-root configuration file.
const FileName = ".gitdeps.toml"

// Config holds every setting of a sync run. Fields map to TOML keys of the
// same name in snake case.
type Config struct {
	Root     string   `toml:"root"`
	Threads  int      `toml:"threads"`
	Retries  *int     `toml:"max_retries"` // nil when unset; negative is unlimited
	Excludes []string `toml:"exclude"`
	// Manifests are extra manifests, each "path" or "path=prefix".
	Manifests []string `toml:"manifests"`

	Cache  CacheConfig  `toml:"cache"`
	Net    NetConfig    `toml:"net"`
	Policy PolicyConfig `toml:"policy"`
	Log    LogConfig    `toml:"log"`
}

// CacheConfig configures the pack cache.
type CacheConfig struct {
	Dir            string  `toml:"dir"`
	Disabled       bool    `toml:"disabled"`
	SizeMultiplier float64 `toml:"size_multiplier"`
	Days           float64 `toml:"days"`
}

// NetConfig configures HTTP access.
type NetConfig struct {
	Proxy string `toml:"proxy"`
	// Timeout bounds the wait for response headers, e.g. "60s".
	Timeout string `toml:"timeout"`
	Token   string `toml:"token"`
}

// PolicyConfig configures how locally modified files are treated.
type PolicyConfig struct {
	Overwrite string `toml:"overwrite"`
	Strict    bool   `toml:"strict"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Defaults.
const (
	DefaultThreads        = 4
	DefaultRetries        = 4
	DefaultSizeMultiplier = 2.0
	DefaultCacheDays      = 7.0
	DefaultOverwrite      = "unchanged"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Default returns a configuration with every default applied for root.
func Default(root string) *Config {
	cfg := &Config{Root: root}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads the TOML file at path. A missing file is not an error when
// optional is set; the defaults are returned instead.
func Load(path string, optional bool) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.Retries == nil {
		n := DefaultRetries
		c.Retries = &n
	}
	if c.Cache.SizeMultiplier == 0 {
		c.Cache.SizeMultiplier = DefaultSizeMultiplier
	}
	if c.Cache.Days == 0 {
		c.Cache.Days = DefaultCacheDays
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir(c.Root)
	}
	if c.Policy.Overwrite == "" {
		c.Policy.Overwrite = DefaultOverwrite
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Threads < 1 || c.Threads > 64 {
		return fmt.Errorf("threads must be between 1 and 64, got %d", c.Threads)
	}
	if c.Retries == nil {
		return errors.New("max_retries is not set")
	}
	if c.Cache.SizeMultiplier < 0 {
		return fmt.Errorf("cache.size_multiplier must not be negative, got %g", c.Cache.SizeMultiplier)
	}
	if c.Cache.Days < 0 {
		return fmt.Errorf("cache.days must not be negative, got %g", c.Cache.Days)
	}
	switch strings.ToLower(c.Policy.Overwrite) {
	case "unchanged", "prompt", "force":
	default:
		return fmt.Errorf("invalid policy.overwrite %q (must be unchanged, prompt or force)", c.Policy.Overwrite)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (must be text or json)", c.Log.Format)
	}
	for _, m := range c.Manifests {
		if p, _ := SplitManifest(m); p == "" {
			return fmt.Errorf("invalid manifests entry %q", m)
		}
	}
	return nil
}

// SplitManifest splits a "path=prefix" manifest argument.
func SplitManifest(arg string) (path, prefix string) {
	path, prefix, _ = strings.Cut(strings.TrimSpace(arg), "=")
	return strings.TrimSpace(path), strings.Trim(strings.TrimSpace(prefix), "/")
}

// DefaultCacheDir returns <root>/.git/gitdeps when root is a git checkout,
// otherwise ~/.gitdeps.
func DefaultCacheDir(root string) string {
	gitDir := filepath.Join(root, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		return filepath.Join(gitDir, "gitdeps")
	}
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(root, ".gitdeps-cache")
	}
	return filepath.Join(home, ".gitdeps")
}

// ExpandPath resolves a leading ~ in p.
func ExpandPath(p string) (string, error) {
	return homedir.Expand(p)
}
