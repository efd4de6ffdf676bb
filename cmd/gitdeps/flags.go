package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/gitdeps/pkg/cache"
	"github.com/odvcencio/gitdeps/pkg/config"
	"github.com/odvcencio/gitdeps/pkg/deps"
	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/remote"
	"github.com/odvcencio/gitdeps/pkg/worktree"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "GITDEPS"

// globalFlags layers settings: config file, then GITDEPS_* environment
// variables, then flags.
type globalFlags struct {
	v *viper.Viper
}

func newGlobalFlags() *globalFlags {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &globalFlags{v: v}
}

func (g *globalFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("root", ".", "root directory of the working tree")
	f.String("config", "", "config file (default <root>/"+config.FileName+")")
	f.Int("threads", config.DefaultThreads, "number of download workers")
	f.Int("max-retries", config.DefaultRetries, "failed downloads per worker before it gives up (0 gives up on the first, negative never does)")
	f.String("cache", "", "pack cache directory")
	f.Bool("no-cache", false, "do not read or write the pack cache")
	f.Float64("cache-size-multiplier", config.DefaultSizeMultiplier, "cache budget as a multiple of the referenced packs' size")
	f.Float64("cache-days", config.DefaultCacheDays, "minimum age in days before a cached pack may be evicted")
	f.StringSlice("exclude", nil, "path prefix to leave untouched (repeatable)")
	f.StringSlice("manifest", nil, "extra manifest as path[=prefix] (repeatable)")
	f.String("proxy", "", "HTTP proxy URL, credentials in the userinfo")
	f.String("timeout", "", "time to wait for response headers, e.g. 60s")
	f.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")
	f.String("log-format", config.DefaultLogFormat, "log format: text or json")
	f.String("log-file", "", "also write logs to this file, rotated")
}

// registerPolicy adds the flags that only make sense when files change.
func (g *globalFlags) registerPolicy(flags *pflag.FlagSet) {
	flags.Bool("force", false, "overwrite locally modified files")
	flags.Bool("prompt", false, "ask before overwriting locally modified files")
	flags.Bool("strict", false, "fail instead of skipping locally modified files")
	flags.Bool("dry-run", false, "print what would change and exit")
}

func (g *globalFlags) bind(cmd *cobra.Command) error {
	if err := g.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// load resolves the configuration for cmd.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	if err := g.bind(cmd); err != nil {
		return nil, err
	}
	v := g.v

	root, err := config.ExpandPath(v.GetString("root"))
	if err != nil {
		return nil, err
	}
	if root == "" {
		root = "."
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	path, optional := v.GetString("config"), false
	if path == "" {
		path, optional = filepath.Join(root, config.FileName), true
	}
	if path, err = config.ExpandPath(path); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}
	cfg.Root = root

	if v.IsSet("threads") {
		cfg.Threads = v.GetInt("threads")
	}
	if v.IsSet("max-retries") {
		n := v.GetInt("max-retries")
		cfg.Retries = &n
	}
	if v.IsSet("cache") {
		cfg.Cache.Dir = v.GetString("cache")
	}
	if v.IsSet("no-cache") {
		cfg.Cache.Disabled = v.GetBool("no-cache")
	}
	if v.IsSet("cache-size-multiplier") {
		cfg.Cache.SizeMultiplier = v.GetFloat64("cache-size-multiplier")
	}
	if v.IsSet("cache-days") {
		cfg.Cache.Days = v.GetFloat64("cache-days")
	}
	if v.IsSet("exclude") {
		cfg.Excludes = append(cfg.Excludes, v.GetStringSlice("exclude")...)
	}
	if v.IsSet("manifest") {
		cfg.Manifests = append(cfg.Manifests, v.GetStringSlice("manifest")...)
	}
	if v.IsSet("proxy") {
		cfg.Net.Proxy = v.GetString("proxy")
	}
	if v.IsSet("timeout") {
		cfg.Net.Timeout = v.GetString("timeout")
	}
	if v.IsSet("token") {
		cfg.Net.Token = v.GetString("token")
	}
	if v.IsSet("log-level") {
		cfg.Log.Level = v.GetString("log-level")
	}
	if v.IsSet("log-format") {
		cfg.Log.Format = v.GetString("log-format")
	}
	if v.IsSet("log-file") {
		cfg.Log.File = v.GetString("log-file")
	}

	force, prompt := v.GetBool("force"), v.GetBool("prompt")
	switch {
	case force && prompt:
		return nil, errors.New("--force and --prompt are mutually exclusive")
	case force:
		cfg.Policy.Overwrite = string(worktree.PolicyForce)
	case prompt:
		cfg.Policy.Overwrite = string(worktree.PolicyPrompt)
	}
	if v.IsSet("strict") {
		cfg.Policy.Strict = v.GetBool("strict")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// dryRun reports whether --dry-run (or GITDEPS_DRY_RUN) is set.
func (g *globalFlags) dryRun() bool {
	return g.v.GetBool("dry-run")
}

// options turns cfg into sync options. The returned cleanup closes the log
// file, if any.
func (g *globalFlags) options(cmd *cobra.Command, cfg *config.Config) (deps.Options, func(), error) {
	logger, closer, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return deps.Options{}, nil, err
	}
	cleanup := func() {
		if closer != nil {
			closer.Close()
		}
	}

	policy, err := worktree.ParsePolicy(cfg.Policy.Overwrite)
	if err != nil {
		cleanup()
		return deps.Options{}, nil, err
	}

	var timeout time.Duration
	if cfg.Net.Timeout != "" {
		if timeout, err = time.ParseDuration(cfg.Net.Timeout); err != nil {
			cleanup()
			return deps.Options{}, nil, fmt.Errorf("invalid timeout %q: %w", cfg.Net.Timeout, err)
		}
	}
	client, err := remote.NewClient(remote.ClientOptions{
		Timeout: timeout,
		Proxy:   cfg.Net.Proxy,
		Token:   cfg.Net.Token,
	})
	if err != nil {
		cleanup()
		return deps.Options{}, nil, err
	}

	extra := make([]manifest.Source, 0, len(cfg.Manifests))
	for _, arg := range cfg.Manifests {
		path, prefix := config.SplitManifest(arg)
		if path, err = config.ExpandPath(path); err != nil {
			cleanup()
			return deps.Options{}, nil, err
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Root, path)
		}
		extra = append(extra, manifest.Source{Path: path, Prefix: prefix})
	}

	opts := deps.Options{
		Root:       cfg.Root,
		Extra:      extra,
		Excludes:   cfg.Excludes,
		Policy:     policy,
		Strict:     cfg.Policy.Strict,
		Threads:    cfg.Threads,
		MaxRetries: *cfg.Retries,
		Evict: cache.EvictPolicy{
			SizeMultiplier: cfg.Cache.SizeMultiplier,
			MaxAge:         time.Duration(cfg.Cache.Days * float64(24*time.Hour)),
		},
		Remote:     client,
		ExecSetter: worktree.DefaultExecSetter(),
		Logger:     logger,
	}
	if policy == worktree.PolicyPrompt {
		opts.Prompter = worktree.LinePrompter{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
	}
	if !cfg.Cache.Disabled {
		dir, err := config.ExpandPath(cfg.Cache.Dir)
		if err != nil {
			cleanup()
			return deps.Options{}, nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cleanup()
			return deps.Options{}, nil, fmt.Errorf("create cache directory: %w", err)
		}
		opts.Cache = cache.NewOsStore(dir)
	}
	return opts, cleanup, nil
}
