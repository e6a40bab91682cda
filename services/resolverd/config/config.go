package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for resolverd.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	DatabasePath  string        `yaml:"database"`
	EventDatabase string        `yaml:"event_database"`
	ChainsPath    string        `yaml:"chains"`
	Log           LogConfig     `yaml:"log"`
	Watcher       WatcherConfig `yaml:"watcher"`
	Admin         AdminConfig   `yaml:"admin"`
	Complete      RateConfig    `yaml:"complete"`
}

// LogConfig tunes structured logging output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// WatcherConfig tunes the funding and expiry sweep loops.
type WatcherConfig struct {
	FundingInterval Duration `yaml:"funding_interval"`
	ExpiryInterval  Duration `yaml:"expiry_interval"`
	DrainInterval   Duration `yaml:"drain_interval"`
}

// AdminConfig controls the authenticated pause/resume surface.
type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// RateConfig throttles the completion endpoint; CompleteSwap is permissionless
// so the resolver caps how fast anonymous callers can hammer it.
type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// ChainConfig describes one ledger the resolver coordinates across. The chain
// registry lives in a separate TOML file so operators can add networks without
// touching the daemon config.
type ChainConfig struct {
	Name               string `toml:"name"`
	RequireAssociation bool   `toml:"require_association"`
}

type chainRegistry struct {
	Chains []ChainConfig `toml:"chain"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadChains reads the chain registry from a TOML file.
func LoadChains(path string) ([]ChainConfig, error) {
	var registry chainRegistry
	if _, err := toml.DecodeFile(path, &registry); err != nil {
		return nil, fmt.Errorf("decode chains: %w", err)
	}
	if len(registry.Chains) < 2 {
		return nil, fmt.Errorf("at least two chains must be configured")
	}
	seen := make(map[string]struct{}, len(registry.Chains))
	for i := range registry.Chains {
		name := strings.ToLower(strings.TrimSpace(registry.Chains[i].Name))
		if name == "" {
			return nil, fmt.Errorf("chain %d: name required", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("chain %q configured twice", name)
		}
		seen[name] = struct{}{}
		registry.Chains[i].Name = name
	}
	return registry.Chains, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7085"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/resolverd"
	}
	if cfg.EventDatabase == "" {
		cfg.EventDatabase = "/var/data/resolverd-events.sqlite"
	}
	if cfg.ChainsPath == "" {
		cfg.ChainsPath = "services/resolverd/chains.toml"
	}
	if cfg.Watcher.FundingInterval.Duration == 0 {
		cfg.Watcher.FundingInterval.Duration = 15 * time.Second
	}
	if cfg.Watcher.ExpiryInterval.Duration == 0 {
		cfg.Watcher.ExpiryInterval.Duration = time.Minute
	}
	if cfg.Watcher.DrainInterval.Duration == 0 {
		cfg.Watcher.DrainInterval.Duration = 5 * time.Second
	}
	if cfg.Complete.PerSecond <= 0 {
		cfg.Complete.PerSecond = 5
	}
	if cfg.Complete.Burst <= 0 {
		cfg.Complete.Burst = 10
	}
	if cfg.Admin.Issuer == "" {
		cfg.Admin.Issuer = "resolverd"
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Admin.JWTSecret) == "" {
		return fmt.Errorf("admin jwt_secret must be configured")
	}
	if len(cfg.Admin.JWTSecret) < 32 {
		return fmt.Errorf("admin jwt_secret must be at least 32 bytes")
	}
	return nil
}
