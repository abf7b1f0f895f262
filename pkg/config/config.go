// Package config loads a node's on-disk YAML configuration, grounded
// on supernode/config/config.go's nested-struct-plus-yaml.v3 shape,
// trimmed to this node's own three collaborators (routing, storage,
// transport) instead of a keyring/RaptorQ/Lumera-client config tree.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lumeranet/corekad/pkg/configurer"
	"github.com/lumeranet/corekad/pkg/logtrace"
)

// NodeConfig identifies this node on the network.
type NodeConfig struct {
	ListenAddress  string   `yaml:"listen_address"`
	ExternalIP     string   `yaml:"external_ip"`
	Port           uint16   `yaml:"port"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`
}

// RoutingConfig tunes the KBRT/IPS collaborators.
type RoutingConfig struct {
	Alpha                 int `yaml:"alpha"`
	BucketCapacity        int `yaml:"bucket_capacity"`
	EvictAfterFailures    int `yaml:"evict_after_failures"`
	FailurePenaltySeconds int `yaml:"failure_penalty_seconds"`
}

// StoreConfig points at the HBMM's backing storage.
type StoreConfig struct {
	DataDir       string `yaml:"data_dir"`
	CacheEnabled  bool   `yaml:"cache_enabled"`
	CacheMaxBytes int64  `yaml:"cache_max_bytes"`
}

// TransportConfig tunes outbound RPC pacing.
type TransportConfig struct {
	DialTimeoutSeconds int `yaml:"dial_timeout_seconds"`
	CallsPerSecond     int `yaml:"calls_per_second"`
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// Config is the full node configuration tree.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Routing   RoutingConfig   `yaml:"routing"`
	Store     StoreConfig     `yaml:"store"`
	Transport TransportConfig `yaml:"transport"`

	// BaseDir is not part of the YAML document; it is resolved from
	// the config file's location and used to make relative data
	// directories absolute.
	BaseDir string `yaml:"-"`
}

// Default returns a Config with the same conservative defaults the
// rest of the module falls back to when unconfigured.
func Default() Config {
	return Config{
		Node: NodeConfig{ListenAddress: "0.0.0.0", Port: 4445},
		Routing: RoutingConfig{
			Alpha:                 3,
			BucketCapacity:        20,
			EvictAfterFailures:    3,
			FailurePenaltySeconds: 300,
		},
		Store: StoreConfig{DataDir: "data", CacheEnabled: true, CacheMaxBytes: 1 << 26},
		Transport: TransportConfig{
			DialTimeoutSeconds: 10,
			CallsPerSecond:     50,
			MaxConcurrentCalls: 16,
		},
	}
}

// DataDir resolves the store's data directory against BaseDir.
func (c Config) DataDir() string {
	if filepath.IsAbs(c.Store.DataDir) {
		return c.Store.DataDir
	}
	return filepath.Join(c.BaseDir, c.Store.DataDir)
}

// Load reads and parses filename, falling back to configurer.DefaultPath
// as BaseDir when filename carries no directory component of its own.
func Load(ctx context.Context, filename string) (Config, error) {
	cfg := Default()

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config: resolve path %q: %w", filename, err)
	}

	logtrace.Info(ctx, "loading node configuration", logtrace.Fields{"path": absPath})

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", absPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", absPath, err)
	}

	cfg.BaseDir = filepath.Dir(absPath)
	if filepath.Dir(filename) == "." {
		cfg.BaseDir = configurer.DefaultPath()
	}
	return cfg, nil
}
