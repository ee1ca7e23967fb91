// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all trrecon configuration.
type Config struct {
	Version int `yaml:"version"`

	Resolver  ResolverConfig  `yaml:"resolver"`
	Rules     RulesConfig     `yaml:"rules"`
	RunStore  RunStoreConfig  `yaml:"run_store"`
	Quality   QualityConfig   `yaml:"quality"`
	Watch     WatchConfig     `yaml:"watch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ResolverConfig controls event-to-activity resolution inputs.
type ResolverConfig struct {
	AliasFile string            `yaml:"alias_file"`
	Aliases   map[string]string `yaml:"aliases"` // inline table, merged over alias_file
}

// RulesConfig points at collaborator-owned rule inputs.
type RulesConfig struct {
	ShiftRulesFile string `yaml:"shift_rules_file"`
}

// RunStoreConfig selects where run reports and patched documents are
// persisted.
type RunStoreConfig struct {
	Backend string      `yaml:"backend"` // local | redis | s3
	Dir     string      `yaml:"dir"`     // local backend root
	Redis   RedisConfig `yaml:"redis"`
	S3      S3Config    `yaml:"s3"`
}

// RedisConfig for the redis run-store backend and the run lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLDays  int    `yaml:"ttl_days"`
}

// S3Config for the s3 run-store backend.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // optional, for S3-compatible stores
}

// QualityConfig for the event-log quality analyzer.
type QualityConfig struct {
	Enabled       bool    `yaml:"enabled"`
	NullThreshold float64 `yaml:"null_threshold"`
}

// WatchConfig for the directory watcher.
type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// TelemetryConfig for optional OTLP tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".trrecon")

	return &Config{
		Version: 1,
		RunStore: RunStoreConfig{
			Backend: "local",
			Dir:     filepath.Join(baseDir, "runs"),
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				TTLDays: 30,
			},
		},
		Quality: QualityConfig{
			Enabled:       true,
			NullThreshold: 0.5,
		},
		Watch: WatchConfig{
			DebounceMs: 500,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.configPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			continue
		}
		m.paths = append(m.paths, path)
	}

	m.loadEnv()
	return nil
}

// configPaths returns config file paths in priority order, later
// entries overriding earlier.
func (m *Manager) configPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/trrecon/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".trrecon", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".trrecon.yaml"))
	}
	return paths
}

func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Resolver.AliasFile != "" {
		m.config.Resolver.AliasFile = src.Resolver.AliasFile
	}
	if len(src.Resolver.Aliases) > 0 {
		if m.config.Resolver.Aliases == nil {
			m.config.Resolver.Aliases = map[string]string{}
		}
		for from, to := range src.Resolver.Aliases {
			m.config.Resolver.Aliases[from] = to
		}
	}

	if src.Rules.ShiftRulesFile != "" {
		m.config.Rules.ShiftRulesFile = src.Rules.ShiftRulesFile
	}

	if src.RunStore.Backend != "" {
		m.config.RunStore.Backend = src.RunStore.Backend
	}
	if src.RunStore.Dir != "" {
		m.config.RunStore.Dir = src.RunStore.Dir
	}
	if src.RunStore.Redis.Addr != "" {
		m.config.RunStore.Redis.Addr = src.RunStore.Redis.Addr
	}
	if src.RunStore.Redis.Password != "" {
		m.config.RunStore.Redis.Password = src.RunStore.Redis.Password
	}
	if src.RunStore.Redis.DB != 0 {
		m.config.RunStore.Redis.DB = src.RunStore.Redis.DB
	}
	if src.RunStore.Redis.TTLDays != 0 {
		m.config.RunStore.Redis.TTLDays = src.RunStore.Redis.TTLDays
	}
	if src.RunStore.S3.Bucket != "" {
		m.config.RunStore.S3.Bucket = src.RunStore.S3.Bucket
	}
	if src.RunStore.S3.Prefix != "" {
		m.config.RunStore.S3.Prefix = src.RunStore.S3.Prefix
	}
	if src.RunStore.S3.Region != "" {
		m.config.RunStore.S3.Region = src.RunStore.S3.Region
	}
	if src.RunStore.S3.Endpoint != "" {
		m.config.RunStore.S3.Endpoint = src.RunStore.S3.Endpoint
	}

	if src.Quality.NullThreshold != 0 {
		m.config.Quality.NullThreshold = src.Quality.NullThreshold
	}
	if src.Watch.DebounceMs != 0 {
		m.config.Watch.DebounceMs = src.Watch.DebounceMs
	}

	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
		m.config.Telemetry.Enabled = true
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("TRRECON_ALIAS_FILE"); v != "" {
		m.config.Resolver.AliasFile = v
	}
	if v := os.Getenv("TRRECON_SHIFT_RULES"); v != "" {
		m.config.Rules.ShiftRulesFile = v
	}
	if v := os.Getenv("TRRECON_RUN_STORE"); v != "" {
		m.config.RunStore.Backend = v
	}
	if v := os.Getenv("TRRECON_REDIS_ADDR"); v != "" {
		m.config.RunStore.Redis.Addr = v
	}
	if v := os.Getenv("TRRECON_S3_BUCKET"); v != "" {
		m.config.RunStore.S3.Bucket = v
	}
	if v := os.Getenv("TRRECON_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the config file paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	configDir := filepath.Join(home, ".trrecon")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
