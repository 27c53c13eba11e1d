// Package config loads the gateway's runtime configuration.
//
// Precedence, lowest to highest: Default(), TOML file, SGW_* environment
// variables, command-line flags (applied by the caller).
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	EnvDestination       = "SGW_DESTINATION"
	EnvHTTPAddr          = "SGW_HTTP_ADDR"
	EnvRPCAddr           = "SGW_RPC_ADDR"
	EnvLogLevel          = "SGW_LOG_LEVEL"
	EnvRegistryEndpoints = "SGW_REGISTRY_ENDPOINTS"
	EnvStrictEncoding    = "SGW_STRICT_ENCODING"
)

type Config struct {
	Name            string
	HTTPAddr        string // empty disables the HTTP listener
	RPCAddr         string // empty disables the RPC listener
	AdvertiseAddr   string // RPC address published to the registry
	Destination     string // host:port of the UDP peer
	LocalAddr       string // local bind address for outbound datagrams
	StrictEncoding  bool
	RequestTimeout  time.Duration // 0 disables
	RateLimit       float64       // requests per second, 0 disables
	RateBurst       int
	ShutdownTimeout time.Duration
	Log             LogConfig
	Registry        RegistryConfig
}

type LogConfig struct {
	Level      string
	Format     string // "console" or "json"
	File       string // empty logs to stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type RegistryConfig struct {
	Endpoints   []string // empty disables registration
	Service     string
	TTLSeconds  int64
	DialTimeout time.Duration
}

// Default mirrors the gateway's historical constants.
func Default() Config {
	return Config{
		Name:            "session-gateway",
		HTTPAddr:        ":8080",
		RPCAddr:         ":9090",
		Destination:     "192.168.1.151:5001",
		LocalAddr:       ":0",
		ShutdownTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Registry: RegistryConfig{
			Service:     "session-gateway",
			TTLSeconds:  10,
			DialTimeout: 5 * time.Second,
		},
	}
}

type fileConfig struct {
	Name            string  `toml:"name"`
	HTTPAddr        string  `toml:"http_addr"`
	RPCAddr         string  `toml:"rpc_addr"`
	AdvertiseAddr   string  `toml:"advertise_addr"`
	Destination     string  `toml:"destination"`
	LocalAddr       string  `toml:"local_addr"`
	StrictEncoding  bool    `toml:"strict_encoding"`
	RequestTimeout  string  `toml:"request_timeout"`
	RateLimit       float64 `toml:"rate_limit"`
	RateBurst       int     `toml:"rate_burst"`
	ShutdownTimeout string  `toml:"shutdown_timeout"`

	Log struct {
		Level      string `toml:"level"`
		Format     string `toml:"format"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
		Compress   bool   `toml:"compress"`
	} `toml:"log"`

	Registry struct {
		Endpoints   []string `toml:"endpoints"`
		Service     string   `toml:"service"`
		TTLSeconds  int64    `toml:"ttl_seconds"`
		DialTimeout string   `toml:"dial_timeout"`
	} `toml:"registry"`
}

// Load reads path on top of Default() and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	setString := func(key string, dst *string, v string) {
		if meta.IsDefined(strings.Split(key, ".")...) {
			*dst = strings.TrimSpace(v)
		}
	}
	setDuration := func(key string, dst *time.Duration, v string) error {
		if !meta.IsDefined(strings.Split(key, ".")...) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("name", &cfg.Name, raw.Name)
	setString("http_addr", &cfg.HTTPAddr, raw.HTTPAddr)
	setString("rpc_addr", &cfg.RPCAddr, raw.RPCAddr)
	setString("advertise_addr", &cfg.AdvertiseAddr, raw.AdvertiseAddr)
	setString("destination", &cfg.Destination, raw.Destination)
	setString("local_addr", &cfg.LocalAddr, raw.LocalAddr)
	if meta.IsDefined("strict_encoding") {
		cfg.StrictEncoding = raw.StrictEncoding
	}
	if err := setDuration("request_timeout", &cfg.RequestTimeout, raw.RequestTimeout); err != nil {
		return err
	}
	if meta.IsDefined("rate_limit") {
		cfg.RateLimit = raw.RateLimit
	}
	if meta.IsDefined("rate_burst") {
		cfg.RateBurst = raw.RateBurst
	}
	if err := setDuration("shutdown_timeout", &cfg.ShutdownTimeout, raw.ShutdownTimeout); err != nil {
		return err
	}

	setString("log.level", &cfg.Log.Level, raw.Log.Level)
	setString("log.format", &cfg.Log.Format, raw.Log.Format)
	setString("log.file", &cfg.Log.File, raw.Log.File)
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "max_age_days") {
		cfg.Log.MaxAgeDays = raw.Log.MaxAgeDays
	}
	if meta.IsDefined("log", "compress") {
		cfg.Log.Compress = raw.Log.Compress
	}

	if meta.IsDefined("registry", "endpoints") {
		cfg.Registry.Endpoints = normalizeList(raw.Registry.Endpoints)
	}
	setString("registry.service", &cfg.Registry.Service, raw.Registry.Service)
	if meta.IsDefined("registry", "ttl_seconds") {
		cfg.Registry.TTLSeconds = raw.Registry.TTLSeconds
	}
	return setDuration("registry.dial_timeout", &cfg.Registry.DialTimeout, raw.Registry.DialTimeout)
}

// ApplyEnv applies SGW_* overrides using lookup (os.LookupEnv in production).
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDestination); ok && strings.TrimSpace(v) != "" {
		cfg.Destination = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvHTTPAddr); ok {
		cfg.HTTPAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvRPCAddr); ok {
		cfg.RPCAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		cfg.Log.Level = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvRegistryEndpoints); ok {
		cfg.Registry.Endpoints = normalizeList(strings.Split(v, ","))
	}
	if v, ok := lookup(EnvStrictEncoding); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvStrictEncoding, err)
		}
		cfg.StrictEncoding = b
	}
	return nil
}

// Validate checks the fields that would otherwise fail only on first use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if c.HTTPAddr == "" && c.RPCAddr == "" {
		return fmt.Errorf("config enables no listener: set http_addr or rpc_addr")
	}
	if _, err := c.DestinationAddr(); err != nil {
		return err
	}
	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("config timeouts must not be negative")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("config rate_limit and rate_burst must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		return fmt.Errorf("config rate_burst must be positive when rate_limit is set")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config log.format %q: want console or json", c.Log.Format)
	}
	if len(c.Registry.Endpoints) > 0 {
		if c.RPCAddr == "" {
			return fmt.Errorf("config registry requires rpc_addr")
		}
		if c.Registry.TTLSeconds <= 0 {
			return fmt.Errorf("config registry.ttl_seconds must be positive")
		}
		if strings.TrimSpace(c.Registry.Service) == "" {
			return fmt.Errorf("config registry.service is required")
		}
	}
	return nil
}

// DestinationAddr resolves the outbound peer address.
func (c Config) DestinationAddr() (*net.UDPAddr, error) {
	if strings.TrimSpace(c.Destination) == "" {
		return nil, fmt.Errorf("config missing destination")
	}
	addr, err := net.ResolveUDPAddr("udp", c.Destination)
	if err != nil {
		return nil, fmt.Errorf("config destination %q: %w", c.Destination, err)
	}
	if addr.Port == 0 {
		return nil, fmt.Errorf("config destination %q: port is required", c.Destination)
	}
	return addr, nil
}

// Advertise returns the RPC address to publish: AdvertiseAddr when set,
// otherwise the bound listener address, otherwise RPCAddr.
func (c Config) Advertise(bound net.Addr) string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	if bound != nil {
		return bound.String()
	}
	return c.RPCAddr
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
