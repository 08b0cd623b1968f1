package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}
	ApplyDefaults(&cfg)

	require.Equal(t, DefaultConfig.ListenAddr, cfg.ListenAddr)
	require.Equal(t, DefaultConfig.LogLevel, cfg.LogLevel)
	require.Equal(t, DefaultConfig.Store.Driver, cfg.Store.Driver)
	require.NotNil(t, cfg.Store.RequestTimeout)
	require.Equal(t, *DefaultConfig.Store.RequestTimeout, *cfg.Store.RequestTimeout)
	require.Equal(t, DefaultConfig.Dispatch.MaxDepth, cfg.Dispatch.MaxDepth)
	require.Equal(t, DefaultConfig.Dispatch.MaxConcurrentFetches, cfg.Dispatch.MaxConcurrentFetches)
	require.NotNil(t, cfg.Refetch.DebounceDelay)
	require.Equal(t, *DefaultConfig.Refetch.DebounceDelay, *cfg.Refetch.DebounceDelay)
	require.Equal(t, DefaultConfig.Refetch.Workers, cfg.Refetch.Workers)
	require.Equal(t, DefaultConfig.Refetch.QueueSize, cfg.Refetch.QueueSize)
	require.NotNil(t, cfg.Upstream.Timeout)
}

func TestApplyDefaultsPreservesSetFields(t *testing.T) {
	customTimeout := 99 * time.Second
	cfg := Config{
		ListenAddr: ":9999",
		Store: StoreConfig{
			Driver:         "http",
			RequestTimeout: &customTimeout,
		},
		Dispatch: DispatchConfig{
			MaxDepth:             7,
			MaxConcurrentFetches: 1,
		},
	}
	ApplyDefaults(&cfg)

	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, "http", cfg.Store.Driver)
	require.Equal(t, customTimeout, *cfg.Store.RequestTimeout)
	require.Equal(t, 7, cfg.Dispatch.MaxDepth)
	require.Equal(t, 1, cfg.Dispatch.MaxConcurrentFetches)

	// Fields the caller left zero-valued still pick up the default.
	require.Equal(t, DefaultConfig.LogLevel, cfg.LogLevel)
	require.Equal(t, DefaultConfig.Refetch.Workers, cfg.Refetch.Workers)
}

func TestApplyDefaultsNilConfigNoop(t *testing.T) {
	require.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestLoadParsesTOMLAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
ListenAddr = ":8080"

[Store]
Driver = "sqlite"
DSN = "test.db"

[Dispatch]
MaxDepth = 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "test.db", cfg.Store.DSN)
	require.Equal(t, 5, cfg.Dispatch.MaxDepth)
	// Unset fields still get defaulted by Load's ApplyDefaults call.
	require.Equal(t, DefaultConfig.LogLevel, cfg.LogLevel)
	require.Equal(t, DefaultConfig.Dispatch.MaxConcurrentFetches, cfg.Dispatch.MaxConcurrentFetches)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
