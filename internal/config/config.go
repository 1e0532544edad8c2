package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/sidecar/internal/logger"
	"github.com/loykin/sidecar/internal/vault"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. SIDECAR_SIDECAR_PORT=8001.
const EnvPrefix = "SIDECAR"

// Config is the full shell configuration. Every field has a default, so an
// empty or missing config file yields a working setup.
type Config struct {
	Sidecar  SidecarConfig  `toml:"sidecar" mapstructure:"sidecar"`
	Vault    VaultConfig    `toml:"vault" mapstructure:"vault"`
	Gateway  GatewayConfig  `toml:"gateway" mapstructure:"gateway"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Instance InstanceConfig `toml:"instance" mapstructure:"instance"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
}

// SidecarConfig describes how to launch and probe the backend service.
type SidecarConfig struct {
	Name           string        `toml:"name" mapstructure:"name"`
	Root           string        `toml:"root" mapstructure:"root"`     // installation root; working directory of the child
	Python         string        `toml:"python" mapstructure:"python"` // explicit interpreter; resolved from root when empty
	Module         string        `toml:"module" mapstructure:"module"`
	App            string        `toml:"app" mapstructure:"app"`
	Host           string        `toml:"host" mapstructure:"host"`
	Port           int           `toml:"port" mapstructure:"port"`
	HealthPath     string        `toml:"health_path" mapstructure:"health_path"`
	StartupTimeout time.Duration `toml:"startup_timeout" mapstructure:"startup_timeout"`
	PollInterval   time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	ProbeTimeout   time.Duration `toml:"probe_timeout" mapstructure:"probe_timeout"`
	GracePeriod    time.Duration `toml:"grace_period" mapstructure:"grace_period"`
	Env            []string      `toml:"env" mapstructure:"env"`
	EnvFiles       []string      `toml:"env_files" mapstructure:"env_files"` // relative paths resolve against Root
}

type VaultConfig struct {
	Product string `toml:"product" mapstructure:"product"`
	Dir     string `toml:"dir" mapstructure:"dir"` // overrides the per-OS location
}

type GatewayConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

type InstanceConfig struct {
	LockDir string `toml:"lock_dir" mapstructure:"lock_dir"`
	Name    string `toml:"name" mapstructure:"name"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	Dir        string `toml:"dir" mapstructure:"dir"` // sidecar stdout/stderr
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Load reads the optional TOML file at path, applies SIDECAR_* environment
// overrides and fills in defaults. An empty path loads defaults and env only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.resolvePaths()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	root := productRoot(vault.DefaultProduct)

	v.SetDefault("sidecar.name", "backend")
	v.SetDefault("sidecar.root", "")
	v.SetDefault("sidecar.python", "")
	v.SetDefault("sidecar.module", "uvicorn")
	v.SetDefault("sidecar.app", "app:app")
	v.SetDefault("sidecar.host", "127.0.0.1")
	v.SetDefault("sidecar.port", 8000)
	v.SetDefault("sidecar.health_path", "/api/health")
	v.SetDefault("sidecar.startup_timeout", 30*time.Second)
	v.SetDefault("sidecar.poll_interval", time.Second)
	v.SetDefault("sidecar.probe_timeout", 2*time.Second)
	v.SetDefault("sidecar.grace_period", 5*time.Second)
	v.SetDefault("sidecar.env", []string{})
	v.SetDefault("sidecar.env_files", []string{".env.local", ".env"})

	v.SetDefault("vault.product", vault.DefaultProduct)
	v.SetDefault("vault.dir", "")

	v.SetDefault("gateway.listen", "127.0.0.1:8765")
	v.SetDefault("gateway.base_path", "/ipc")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9465")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", filepath.Join(root, "shell", "history.db"))

	v.SetDefault("instance.lock_dir", os.TempDir())
	v.SetDefault("instance.name", "privatixai-shell")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.file", filepath.Join(root, "logs", "shell.log"))
	v.SetDefault("log.dir", filepath.Join(root, "logs"))
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
}

func productRoot(product string) string {
	home, _ := os.UserHomeDir()
	return vault.ProductRoot(vault.CurrentOS(), home, os.Getenv("APPDATA"), product)
}

// resolvePaths fills the sidecar root from the installation layout and makes
// env file paths absolute.
func (c *Config) resolvePaths() {
	if c.Sidecar.Root == "" {
		c.Sidecar.Root = DefaultSidecarRoot()
	}
	files := make([]string, 0, len(c.Sidecar.EnvFiles))
	for _, f := range c.Sidecar.EnvFiles {
		if f == "" {
			continue
		}
		if !filepath.IsAbs(f) {
			f = filepath.Join(c.Sidecar.Root, f)
		}
		files = append(files, f)
	}
	c.Sidecar.EnvFiles = files
}

// DefaultSidecarRoot locates the backend next to the installed executable
// (<exe dir>/backend), falling back to a development checkout in the working
// directory (./privatixai-be).
func DefaultSidecarRoot() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "backend")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return "privatixai-be"
	}
	return filepath.Join(wd, "privatixai-be")
}

// Validate rejects configurations the supervisor cannot act on.
func (c *Config) Validate() error {
	s := c.Sidecar
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("sidecar.name is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("sidecar.port %d out of range", s.Port)
	}
	if !strings.HasPrefix(s.HealthPath, "/") {
		return fmt.Errorf("sidecar.health_path must start with '/': %q", s.HealthPath)
	}
	for name, d := range map[string]time.Duration{
		"startup_timeout": s.StartupTimeout,
		"poll_interval":   s.PollInterval,
		"probe_timeout":   s.ProbeTimeout,
		"grace_period":    s.GracePeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("sidecar.%s must be positive, got %s", name, d)
		}
	}
	if s.PollInterval > s.StartupTimeout {
		return fmt.Errorf("sidecar.poll_interval %s exceeds startup_timeout %s", s.PollInterval, s.StartupTimeout)
	}
	for i, kv := range s.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("sidecar.env[%d] %q is invalid, must be in KEY=VALUE format", i, kv)
		}
	}
	if _, _, err := net.SplitHostPort(c.Gateway.Listen); err != nil {
		return fmt.Errorf("gateway.listen %q: %w", c.Gateway.Listen, err)
	}
	if strings.TrimSpace(c.Instance.Name) == "" || strings.ContainsAny(c.Instance.Name, `/\`) {
		return fmt.Errorf("instance.name %q is invalid", c.Instance.Name)
	}
	return nil
}

// Origin is the sidecar's local HTTP origin, e.g. http://127.0.0.1:8000.
func (s SidecarConfig) Origin() string {
	return "http://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// HealthURL is the control endpoint polled for readiness.
func (s SidecarConfig) HealthURL() string {
	return s.Origin() + s.HealthPath
}

// Logger converts the log section into the logger package configuration.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:  l.Level,
		Format: l.Format,
		Color:  l.Color,
		File: logger.FileConfig{
			Path:       l.File,
			Dir:        l.Dir,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}
