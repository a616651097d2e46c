package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the local facade listener and replica path.
type ServerConfig struct {
	Address   string          `yaml:"address"`
	Port      int             `yaml:"port"`
	DBPath    string          `yaml:"db_path"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds per-client request rate on the facade.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RemoteConfig holds the authoritative backend endpoint. An empty
// BaseURL runs the engine in local-only mode.
type RemoteConfig struct {
	BaseURL      string    `yaml:"base_url"`
	Token        string    `yaml:"token"`
	Timeout      Duration  `yaml:"timeout"`
	MaxBodyBytes SizeBytes `yaml:"max_body_bytes"`
	PageSize     int       `yaml:"page_size"`
}

// SyncConfig holds the scheduler throttle windows.
type SyncConfig struct {
	FeedMinInterval    Duration `yaml:"feed_min_interval"`
	MessageMinInterval Duration `yaml:"message_min_interval"`
}

// SweepConfig holds the periodic full-resync runner settings.
type SweepConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// QueryConfig controls the read path.
type QueryConfig struct {
	// ScanOnly forces the pure snapshot-scan fallback instead of the
	// secondary index.
	ScanOnly bool `yaml:"scan_only"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns host:port for the facade HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8091
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// RemoteActive reports whether an authoritative backend is configured.
func (c *Config) RemoteActive() bool { return c.Remote.BaseURL != "" }

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.DBPath == "" {
		c.Server.DBPath = "./.replica"
	}
	if c.Sweep.Cron == "" {
		c.Sweep.Cron = "*/15 * * * *"
	}
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8091", "HTTP listen address")
	dbPtr := flag.String("db", "./.replica", "Pebble replica path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto the provided cfg
// and reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	if v := os.Getenv("SCENEFEED_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	} else {
		if host := os.Getenv("SCENEFEED_ADDRESS"); host != "" {
			envUsed = true
			cfg.Server.Address = host
		}
		if port := os.Getenv("SCENEFEED_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		}
	}

	if v := os.Getenv("SCENEFEED_DB_PATH"); v != "" {
		envUsed = true
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("SCENEFEED_REMOTE_URL"); v != "" {
		envUsed = true
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("SCENEFEED_REMOTE_TOKEN"); v != "" {
		envUsed = true
		cfg.Remote.Token = v
	}
	if v := os.Getenv("SCENEFEED_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Server.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("SCENEFEED_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Server.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("SCENEFEED_SWEEP_CRON"); v != "" {
		envUsed = true
		cfg.Sweep.Cron = v
		cfg.Sweep.Enabled = true
	}
	if v := os.Getenv("SCENEFEED_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	return envUsed
}

// LoadEffective loads config from the given path (file) and applies environment
// overrides. It returns the effective config and a boolean indicating
// whether env vars were used.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
		cfg.applyDefaults()
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided value
// and the environment variable `SCENEFEED_CONFIG` when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("SCENEFEED_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
