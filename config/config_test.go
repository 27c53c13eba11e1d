package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "192.168.1.151:5001", cfg.Destination)
}

func TestApplyFileOverridesOnlyDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
name = "gw-a"
destination = "127.0.0.1:6001"
strict_encoding = true
request_timeout = "250ms"
rate_limit = 50.0
rate_burst = 10

[log]
level = "debug"
format = "json"

[registry]
endpoints = [" 127.0.0.1:2379 ", ""]
ttl_seconds = 30
`)
	cfg := Default()
	require.NoError(t, applyFile(&cfg, path))

	assert.Equal(t, "gw-a", cfg.Name)
	assert.Equal(t, "127.0.0.1:6001", cfg.Destination)
	assert.True(t, cfg.StrictEncoding)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, 50.0, cfg.RateLimit)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, int64(30), cfg.Registry.TTLSeconds)

	// untouched keys keep their defaults
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.RPCAddr)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "session-gateway", cfg.Registry.Service)
	require.NoError(t, cfg.Validate())
}

func TestApplyFileCanDisableListener(t *testing.T) {
	path := writeConfig(t, `rpc_addr = ""`)
	cfg := Default()
	require.NoError(t, applyFile(&cfg, path))
	assert.Empty(t, cfg.RPCAddr)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestApplyFileErrors(t *testing.T) {
	cfg := Default()
	assert.Error(t, applyFile(&cfg, filepath.Join(t.TempDir(), "missing.toml")))
	assert.ErrorContains(t, applyFile(&cfg, writeConfig(t, `request_timeout = "soon"`)), "request_timeout")
	assert.ErrorContains(t, applyFile(&cfg, writeConfig(t, `destinaton = "x:1"`)), "unknown key")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDestination:       "10.0.0.5:7000",
		EnvRPCAddr:           "",
		EnvLogLevel:          "warn",
		EnvRegistryEndpoints: "a:2379, b:2379",
		EnvStrictEncoding:    "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, lookup))

	assert.Equal(t, "10.0.0.5:7000", cfg.Destination)
	assert.Empty(t, cfg.RPCAddr)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.Registry.Endpoints)
	assert.True(t, cfg.StrictEncoding)

	env[EnvStrictEncoding] = "maybe"
	assert.Error(t, ApplyEnv(&cfg, lookup))
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv(EnvDestination, "127.0.0.1:5999")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5999", cfg.Destination)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no listeners", func(c *Config) { c.HTTPAddr, c.RPCAddr = "", "" }, "no listener"},
		{"no destination", func(c *Config) { c.Destination = "" }, "missing destination"},
		{"no port", func(c *Config) { c.Destination = "127.0.0.1:0" }, "port is required"},
		{"bad destination", func(c *Config) { c.Destination = "nohostport" }, "destination"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "timeouts"},
		{"rate without burst", func(c *Config) { c.RateLimit = 5 }, "rate_burst"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"registry without rpc", func(c *Config) {
			c.Registry.Endpoints = []string{"127.0.0.1:2379"}
			c.RPCAddr = ""
		}, "requires rpc_addr"},
		{"registry ttl", func(c *Config) {
			c.Registry.Endpoints = []string{"127.0.0.1:2379"}
			c.Registry.TTLSeconds = 0
		}, "ttl_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestAdvertise(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":9090", cfg.Advertise(nil))
	bound := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
	assert.Equal(t, "127.0.0.1:40000", cfg.Advertise(bound))
	cfg.AdvertiseAddr = "10.1.1.1:9090"
	assert.Equal(t, "10.1.1.1:9090", cfg.Advertise(bound))
}

