package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
threads = 8
max_retries = 2
exclude = ["Engine/Binaries/Mac", "Samples"]
manifests = ["extra/Game.gitdeps.xml=Game"]

[cache]
dir = "/var/cache/gitdeps"
size_multiplier = 1.5
days = 3

[net]
proxy = "http://proxy:8080"

[policy]
overwrite = "force"
`), 0o644))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8, cfg.Threads)
	require.NotNil(t, cfg.Retries)
	assert.Equal(t, 2, *cfg.Retries)
	assert.Equal(t, []string{"Engine/Binaries/Mac", "Samples"}, cfg.Excludes)
	assert.Equal(t, "/var/cache/gitdeps", cfg.Cache.Dir)
	assert.Equal(t, 1.5, cfg.Cache.SizeMultiplier)
	assert.Equal(t, 3.0, cfg.Cache.Days)
	assert.Equal(t, "http://proxy:8080", cfg.Net.Proxy)
	assert.Equal(t, "force", cfg.Policy.Overwrite)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Zero(t, cfg.Threads)

	_, err = Load(path, false)
	assert.Error(t, err)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("threads = [nope"), 0o644))
	_, err := Load(path, true)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultThreads, cfg.Threads)
	require.NotNil(t, cfg.Retries)
	assert.Equal(t, DefaultRetries, *cfg.Retries)
	assert.Equal(t, DefaultSizeMultiplier, cfg.Cache.SizeMultiplier)
	assert.Equal(t, DefaultCacheDays, cfg.Cache.Days)
	assert.Equal(t, "unchanged", cfg.Policy.Overwrite)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".gitdeps"), cfg.Cache.Dir)
}

func TestDefaultCacheDirInsideGitCheckout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	assert.Equal(t, filepath.Join(root, ".git", "gitdeps"), DefaultCacheDir(root))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threads", func(c *Config) { c.Threads = 0 }},
		{"retries", func(c *Config) { c.Retries = nil }},
		{"multiplier", func(c *Config) { c.Cache.SizeMultiplier = -2 }},
		{"days", func(c *Config) { c.Cache.Days = -1 }},
		{"policy", func(c *Config) { c.Policy.Overwrite = "sometimes" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"manifest", func(c *Config) { c.Manifests = []string{"=Game"} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRetriesKeepExplicitValues(t *testing.T) {
	for _, src := range []string{"max_retries = 0", "max_retries = -1"} {
		path := filepath.Join(t.TempDir(), FileName)
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

		cfg, err := Load(path, false)
		require.NoError(t, err)
		require.NotNil(t, cfg.Retries, src)
		want := *cfg.Retries
		cfg.ApplyDefaults()
		require.NoError(t, cfg.Validate(), src)
		assert.Equal(t, want, *cfg.Retries, src)
	}
}

func TestSplitManifest(t *testing.T) {
	p, prefix := SplitManifest(" extra/a.gitdeps.xml = /Game/ ")
	assert.Equal(t, "extra/a.gitdeps.xml", p)
	assert.Equal(t, "Game", prefix)

	p, prefix = SplitManifest("b.gitdeps.xml")
	assert.Equal(t, "b.gitdeps.xml", p)
	assert.Empty(t, prefix)
}
