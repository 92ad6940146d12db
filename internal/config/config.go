// Package config loads swatchwise configuration from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/swatchwise/internal/host/rodhost"
	"github.com/jmylchreest/swatchwise/internal/sampler"
	"github.com/jmylchreest/swatchwise/internal/session"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// EnvPrefix prefixes every environment override, e.g. SWATCHWISE_STORE_PATH.
const EnvPrefix = "SWATCHWISE"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the top-level configuration.
type Config struct {
	Catalog     CatalogConfig     `yaml:"catalog" envconfig:"catalog"`
	Store       StoreConfig       `yaml:"store" envconfig:"store"`
	Agent       AgentConfig       `yaml:"agent" envconfig:"agent"`
	Coordinator CoordinatorConfig `yaml:"coordinator" envconfig:"coordinator"`
	Sampler     SamplerConfig     `yaml:"sampler" envconfig:"sampler"`
	Browser     BrowserConfig     `yaml:"browser" envconfig:"browser"`
	Server      ServerConfig      `yaml:"server" envconfig:"server"`
}

// CatalogConfig selects the colour catalog.
type CatalogConfig struct {
	// Source is "embedded", a file path (optionally .xz/.gz/.bz2) or an https URL.
	Source        string `yaml:"source" envconfig:"source"`
	CacheDir      string `yaml:"cache_dir" envconfig:"cache_dir"`
	Refresh       bool   `yaml:"refresh" envconfig:"refresh"`
	AllowInsecure bool   `yaml:"allow_insecure" envconfig:"allow_insecure"`
}

// StoreConfig selects where session state is persisted.
type StoreConfig struct {
	Driver string `yaml:"driver" envconfig:"driver"`
	Path   string `yaml:"path" envconfig:"path"`
}

// AgentConfig controls page agents.
type AgentConfig struct {
	Channel        string        `yaml:"channel" envconfig:"channel"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" envconfig:"reconnect_delay"`
}

// CoordinatorConfig controls the session coordinator.
type CoordinatorConfig struct {
	ResponseTimeout   time.Duration `yaml:"response_timeout" envconfig:"response_timeout"`
	RestrictedSchemes []string      `yaml:"restricted_schemes" envconfig:"restricted_schemes"`
}

// SamplerConfig controls pixel sampling.
type SamplerConfig struct {
	SurfaceSize  int    `yaml:"surface_size" envconfig:"surface_size"`
	Interpolator string `yaml:"interpolator" envconfig:"interpolator"`
}

// BrowserConfig controls the Chrome host.
type BrowserConfig struct {
	Remote         string `yaml:"remote" envconfig:"remote"`
	Headless       bool   `yaml:"headless" envconfig:"headless"`
	Stealth        bool   `yaml:"stealth" envconfig:"stealth"`
	CaptureFormat  string `yaml:"capture_format" envconfig:"capture_format"`
	CaptureQuality int    `yaml:"capture_quality" envconfig:"capture_quality"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen         string        `yaml:"listen" envconfig:"listen"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"write_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" envconfig:"max_upload_bytes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{Source: "embedded"},
		Store:   StoreConfig{Driver: StoreSQLite, Path: DefaultStorePath()},
		Agent: AgentConfig{
			Channel:        protocol.ChannelName,
			ReconnectDelay: time.Second,
		},
		Coordinator: CoordinatorConfig{
			ResponseTimeout:   session.DefaultResponseTimeout,
			RestrictedSchemes: append([]string(nil), session.DefaultRestrictedSchemes...),
		},
		Sampler: SamplerConfig{
			SurfaceSize:  sampler.DefaultSurfaceSize,
			Interpolator: "approxbilinear",
		},
		Browser: BrowserConfig{
			Headless:       true,
			CaptureFormat:  "png",
			CaptureQuality: 90,
		},
		Server: ServerConfig{
			Listen:         "127.0.0.1:8086",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 16 << 20,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/swatchwise/config.yaml (or the platform
// equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".swatchwise", "config.yaml")
	}
	return filepath.Join(dir, "swatchwise", "config.yaml")
}

// DefaultStorePath returns the default SQLite session store location.
func DefaultStorePath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "swatchwise", "sessions.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".swatchwise", "sessions.db")
	}
	return filepath.Join(home, ".local", "state", "swatchwise", "sessions.db")
}

// Load builds the configuration: defaults, then the YAML file, then environment
// overrides. An empty path reads DefaultPath if it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file over the defaults, without environment
// overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid value.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", StoreMemory, StoreSQLite, c.Store.Driver))
	}

	if c.Agent.Channel == "" {
		errs = append(errs, errors.New("agent.channel must not be empty"))
	}
	if c.Agent.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("agent.reconnect_delay must be positive, got %s", c.Agent.ReconnectDelay))
	}
	if c.Coordinator.ResponseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("coordinator.response_timeout must be positive, got %s", c.Coordinator.ResponseTimeout))
	}
	if c.Sampler.SurfaceSize < 1 || c.Sampler.SurfaceSize > 256 {
		errs = append(errs, fmt.Errorf("sampler.surface_size must be between 1 and 256, got %d", c.Sampler.SurfaceSize))
	}
	if _, err := sampler.ParseInterpolator(c.Sampler.Interpolator); err != nil {
		errs = append(errs, fmt.Errorf("sampler.interpolator: %w", err))
	}
	if _, err := rodhost.ParseCaptureFormat(c.Browser.CaptureFormat); err != nil {
		errs = append(errs, fmt.Errorf("browser.capture_format: %w", err))
	}
	if c.Browser.CaptureQuality < 0 || c.Browser.CaptureQuality > 100 {
		errs = append(errs, fmt.Errorf("browser.capture_quality must be between 0 and 100, got %d", c.Browser.CaptureQuality))
	}
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}

	return errors.Join(errs...)
}
