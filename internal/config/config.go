package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the sitegate configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Search   SearchConfig   `yaml:"search"`
	Preload  PreloadConfig  `yaml:"preload"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// UpstreamConfig holds origin server settings.
type UpstreamConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CacheConfig holds partition naming, routing, and seeding settings.
type CacheConfig struct {
	Project           string   `yaml:"project"`
	Version           string   `yaml:"version"`
	DynamicMaxEntries int      `yaml:"dynamic_max_entries"`
	NetworkFirstPaths []string `yaml:"network_first_paths"`
	ContentPrefixes   []string `yaml:"content_prefixes"`
	ContentPatterns   []string `yaml:"content_patterns"`
	OfflinePath       string   `yaml:"offline_path"`
	HomePath          string   `yaml:"home_path"`
	Manifest          []string `yaml:"manifest"`
	DiscoverPaths     []string `yaml:"discover_paths"`
	DevMode           bool     `yaml:"dev_mode"`
}

// SearchConfig holds search index and limit settings.
type SearchConfig struct {
	IndexPath    string `yaml:"index_path"`
	DefaultLimit int    `yaml:"default_limit"`
	MaxLimit     int    `yaml:"max_limit"`
	SuggestLimit int    `yaml:"suggest_limit"`
}

// PreloadConfig holds popular-page preload settings.
type PreloadConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TopN     int    `yaml:"top_n"`
	Schedule string `yaml:"schedule"` // cron spec, e.g. "@every 15m"
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Upstream.TimeoutSec <= 0 {
		c.Upstream.TimeoutSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Cache.Project == "" {
		c.Cache.Project = "sitegate"
	}
	if c.Cache.Version == "" {
		c.Cache.Version = "v1"
	}
	if c.Cache.DynamicMaxEntries <= 0 {
		c.Cache.DynamicMaxEntries = 50
	}
	if len(c.Cache.NetworkFirstPaths) == 0 {
		c.Cache.NetworkFirstPaths = []string{
			"/health", "/feed.xml", "/feed.atom", "/feed.json", "/sitemap.xml", "/robots.txt",
		}
	}
	if len(c.Cache.ContentPrefixes) == 0 {
		c.Cache.ContentPrefixes = []string{"/docs/", "/blog/"}
	}
	if c.Cache.OfflinePath == "" {
		c.Cache.OfflinePath = "/offline"
	}
	if c.Cache.HomePath == "" {
		c.Cache.HomePath = "/"
	}
	if len(c.Cache.DiscoverPaths) == 0 {
		c.Cache.DiscoverPaths = []string{"/blog", "/docs"}
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Search.SuggestLimit <= 0 {
		c.Search.SuggestLimit = 8
	}
	if c.Preload.TopN <= 0 {
		c.Preload.TopN = 10
	}
	if c.Preload.Schedule == "" {
		c.Preload.Schedule = "@every 15m"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case "memory":
		// no addrs needed
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"memory\", got %q", c.Database.Driver)
	}
	for _, p := range c.Cache.ContentPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("cache.content_patterns: invalid pattern %q: %w", p, err)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
