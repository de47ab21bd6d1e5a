package config

import (
	"os"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Upstream: UpstreamConfig{BaseURL: "https://tryandromeda.dev"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingUpstream(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.BaseURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing upstream base_url")
	}
}

func TestValidate_RedisWithoutAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "redis"
	cfg.Database.Addrs = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for redis driver without addrs")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "sqlite"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestValidate_BadContentPattern(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.ContentPatterns = []string{"[unclosed"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid content pattern")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Upstream.TimeoutSec != 10 {
		t.Errorf("expected upstream TimeoutSec=10, got %d", cfg.Upstream.TimeoutSec)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("expected driver=memory, got %q", cfg.Database.Driver)
	}
	if cfg.Cache.Project != "sitegate" {
		t.Errorf("expected project=sitegate, got %q", cfg.Cache.Project)
	}
	if cfg.Cache.DynamicMaxEntries != 50 {
		t.Errorf("expected DynamicMaxEntries=50, got %d", cfg.Cache.DynamicMaxEntries)
	}
	if len(cfg.Cache.NetworkFirstPaths) == 0 {
		t.Error("expected default network-first paths")
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("expected DefaultLimit=10, got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.MaxLimit != 100 {
		t.Errorf("expected MaxLimit=100, got %d", cfg.Search.MaxLimit)
	}
	if cfg.Search.SuggestLimit != 8 {
		t.Errorf("expected SuggestLimit=8, got %d", cfg.Search.SuggestLimit)
	}
	if cfg.Preload.Schedule != "@every 15m" {
		t.Errorf("expected preload schedule default, got %q", cfg.Preload.Schedule)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:   HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Cache:  CacheConfig{Version: "2026-01", DynamicMaxEntries: 25},
		Search: SearchConfig{DefaultLimit: 5, MaxLimit: 50},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Cache.Version != "2026-01" {
		t.Errorf("expected version=2026-01, got %q", cfg.Cache.Version)
	}
	if cfg.Cache.DynamicMaxEntries != 25 {
		t.Errorf("expected DynamicMaxEntries=25, got %d", cfg.Cache.DynamicMaxEntries)
	}
	if cfg.Search.DefaultLimit != 5 {
		t.Errorf("expected DefaultLimit=5, got %d", cfg.Search.DefaultLimit)
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("SITEGATE_TEST_URL", "https://example.dev")
	defer os.Unsetenv("SITEGATE_TEST_URL")

	in := []byte("base_url: ${SITEGATE_TEST_URL}\nversion: ${SITEGATE_TEST_MISSING:-v9}")
	out := string(expandEnvVars(in))

	want := "base_url: https://example.dev\nversion: v9"
	if out != want {
		t.Errorf("expanded config:\ngot:  %q\nwant: %q", out, want)
	}
}
