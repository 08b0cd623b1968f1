// Package config defines RelationService's configuration surface,
// parsed from a TOML file the way go-ethereum's own node config is
// (github.com/naoina/toml), with a DefaultConfig and an Apply step
// matching miner/minerconfig.ApplyDefaultMinerConfig's nil-check and
// log-the-fallback style.
package config

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// StoreConfig configures the Graph Store Adapter's backend.
type StoreConfig struct {
	// Driver selects the backend: "http" for the remote graph
	// database wire protocol (spec §6), or "sqlite" for the embedded
	// dev/test backend.
	Driver string `toml:",omitempty"`
	// Endpoint is the base URL for the http driver.
	Endpoint string `toml:",omitempty"`
	// Graph is the named graph to query against, used to build the
	// `/query/{graph}/{queryName}` and `/graph/{graph}` paths.
	Graph string `toml:",omitempty"`
	// Token is the bearer token for the http driver.
	Token string `toml:",omitempty"`
	// DSN is the sqlite driver's database path (":memory:" for tests).
	DSN string `toml:",omitempty"`
	// RequestTimeout bounds every outbound store call.
	RequestTimeout *time.Duration `toml:",omitempty"`
}

// DispatchConfig configures the target-dispatch engine.
type DispatchConfig struct {
	// MaxDepth is fetch_all's default BFS depth (spec §4.3: "Default
	// when called from the query path is 3").
	MaxDepth int `toml:",omitempty"`
	// MaxConcurrentFetches bounds in-flight upstream HTTP calls
	// (spec §4.3: "configurable, default sufficient for production —
	// e.g. 32").
	MaxConcurrentFetches int `toml:",omitempty"`
}

// RefetchConfig configures the background freshness policy.
type RefetchConfig struct {
	// DebounceDelay is the grace period before a stale record is
	// deleted and refetched (spec §4.4/§9, Open Question 3: "expose
	// it as configuration").
	DebounceDelay *time.Duration `toml:",omitempty"`
	// Workers sizes the worker pool draining the refetch queue.
	Workers int `toml:",omitempty"`
	// QueueSize bounds the refetch queue; enqueue is non-blocking and
	// drops (with a logged warning) once full.
	QueueSize int `toml:",omitempty"`
}

// UpstreamConfig configures outbound HTTP calls to each upstream.
type UpstreamConfig struct {
	Timeout *time.Duration `toml:",omitempty"`
	// EthereumRPC is the JSON-RPC endpoint the ens adapter dials via
	// ethclient.
	EthereumRPC string `toml:",omitempty"`
}

// Config is the top-level configuration struct, loaded from a single
// TOML file at startup.
type Config struct {
	ListenAddr string `toml:",omitempty"`
	LogLevel   string `toml:",omitempty"`

	Store    StoreConfig
	Dispatch DispatchConfig
	Refetch  RefetchConfig
	Upstream UpstreamConfig
}

var (
	defaultRequestTimeout  = 10 * time.Second
	defaultDebounceDelay   = 10 * time.Second
	defaultUpstreamTimeout = 15 * time.Second
)

// DefaultConfig mirrors miner.DefaultConfig: a package-level var other
// code can start from and override selectively.
var DefaultConfig = Config{
	ListenAddr: ":8000",
	LogLevel:   "info",
	Store: StoreConfig{
		Driver:         "sqlite",
		DSN:            "relationservice.db",
		RequestTimeout: &defaultRequestTimeout,
	},
	Dispatch: DispatchConfig{
		MaxDepth:             3,
		MaxConcurrentFetches: 32,
	},
	Refetch: RefetchConfig{
		DebounceDelay: &defaultDebounceDelay,
		Workers:       4,
		QueueSize:     1024,
	},
	Upstream: UpstreamConfig{
		Timeout: &defaultUpstreamTimeout,
	},
}

// ApplyDefaults fills in zero-valued fields from DefaultConfig,
// logging every fallback it applies — the same shape as
// ApplyDefaultMinerConfig in the teacher's miner/minerconfig package.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		log.Warn("ApplyDefaults cfg == nil")
		return
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultConfig.ListenAddr
		log.Info("ApplyDefaults", "ListenAddr", cfg.ListenAddr)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultConfig.LogLevel
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultConfig.Store.Driver
		log.Info("ApplyDefaults", "Store.Driver", cfg.Store.Driver)
	}
	if cfg.Store.RequestTimeout == nil {
		cfg.Store.RequestTimeout = DefaultConfig.Store.RequestTimeout
	}
	if cfg.Dispatch.MaxDepth == 0 {
		cfg.Dispatch.MaxDepth = DefaultConfig.Dispatch.MaxDepth
	}
	if cfg.Dispatch.MaxConcurrentFetches == 0 {
		cfg.Dispatch.MaxConcurrentFetches = DefaultConfig.Dispatch.MaxConcurrentFetches
	}
	if cfg.Refetch.DebounceDelay == nil {
		cfg.Refetch.DebounceDelay = DefaultConfig.Refetch.DebounceDelay
		log.Info("ApplyDefaults", "Refetch.DebounceDelay", *cfg.Refetch.DebounceDelay)
	}
	if cfg.Refetch.Workers == 0 {
		cfg.Refetch.Workers = DefaultConfig.Refetch.Workers
	}
	if cfg.Refetch.QueueSize == 0 {
		cfg.Refetch.QueueSize = DefaultConfig.Refetch.QueueSize
	}
	if cfg.Upstream.Timeout == nil {
		cfg.Upstream.Timeout = DefaultConfig.Upstream.Timeout
	}
}

// Load reads and parses a TOML config file, applying defaults for any
// field the file leaves zero-valued.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer f.Close()

	cfg := Config{}
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config file")
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}
