package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vertextoedge/artifact-cache/internal/domain"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// ARTIFACT_CACHE_ARTIFACT_URL for artifact.url
const EnvPrefix = "ARTIFACT_CACHE"

// Config represents the entire application configuration
type Config struct {
	Artifact    ArtifactConfig    `mapstructure:"artifact"`
	Store       StoreConfig       `mapstructure:"store"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Device      DeviceConfig      `mapstructure:"device"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Server      ServerConfig      `mapstructure:"server"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ArtifactConfig describes the artifact and how it is fetched
type ArtifactConfig struct {
	ID                  string `mapstructure:"id"`
	URL                 string `mapstructure:"url"`
	DefaultChunkSizeMB  int    `mapstructure:"default_chunk_size_mb"`
	ProbeTimeout        string `mapstructure:"probe_timeout"`
	ProbePath           string `mapstructure:"probe_path"`
	Concurrency         int    `mapstructure:"concurrency"`
	VerifyChunks        bool   `mapstructure:"verify_chunks"`
	ProgressLogInterval string `mapstructure:"progress_log_interval"`
}

// StoreConfig contains persistent store settings
type StoreConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite or memory
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// HTTPConfig contains outbound HTTP client settings
type HTTPConfig struct {
	Timeout               string            `mapstructure:"timeout"`
	ResponseHeaderTimeout string            `mapstructure:"response_header_timeout"`
	UserAgent             string            `mapstructure:"user_agent"`
	SkipTLSVerify         bool              `mapstructure:"skip_tls_verify"`
	Headers               map[string]string `mapstructure:"headers"`
}

// DeviceConfig contains capability detection settings
type DeviceConfig struct {
	SysRoot            string  `mapstructure:"sys_root"`
	UserAgent          string  `mapstructure:"user_agent"`
	MemoryGB           float64 `mapstructure:"memory_gb"` // 0 = detect
	Cores              int     `mapstructure:"cores"`     // 0 = detect
	DisableAccelerated bool    `mapstructure:"disable_accelerated"`
	DisableGraphics    bool    `mapstructure:"disable_graphics"`
}

// BackendConfig contains backend selection settings
type BackendConfig struct {
	Forced        string `mapstructure:"forced"` // empty or auto = probe
	RemoteURL     string `mapstructure:"remote_url"`
	RemoteTimeout string `mapstructure:"remote_timeout"`
	RemoteAPIKey  string `mapstructure:"remote_api_key"`
}

// ServerConfig contains control API settings
type ServerConfig struct {
	BindAddr      string `mapstructure:"bind_addr"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
	ReadTimeout   string `mapstructure:"read_timeout"`
	WriteTimeout  string `mapstructure:"write_timeout"`
	IdleTimeout   string `mapstructure:"idle_timeout"`
}

// MaintenanceConfig contains background maintenance settings
type MaintenanceConfig struct {
	PruneInterval string `mapstructure:"prune_interval"`
	PruneOnStart  bool   `mapstructure:"prune_on_start"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("artifact.id", "qwen3-0.6b")
	v.SetDefault("artifact.url", "")
	v.SetDefault("artifact.default_chunk_size_mb", 10)
	v.SetDefault("artifact.probe_timeout", "3s")
	v.SetDefault("artifact.probe_path", "network-test")
	v.SetDefault("artifact.concurrency", 1)
	v.SetDefault("artifact.verify_chunks", false)
	v.SetDefault("artifact.progress_log_interval", "5s")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./data/artifact-cache.db")
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.response_header_timeout", "30s")
	v.SetDefault("http.user_agent", "artifact-cache")
	v.SetDefault("http.skip_tls_verify", false)
	v.SetDefault("device.sys_root", "/sys")
	v.SetDefault("device.user_agent", "")
	v.SetDefault("device.memory_gb", 0)
	v.SetDefault("device.cores", 0)
	v.SetDefault("device.disable_accelerated", false)
	v.SetDefault("device.disable_graphics", false)
	v.SetDefault("backend.forced", "auto")
	v.SetDefault("backend.remote_url", "")
	v.SetDefault("backend.remote_timeout", "60s")
	v.SetDefault("backend.remote_api_key", "")
	v.SetDefault("server.bind_addr", "127.0.0.1:8090")
	v.SetDefault("server.admin_username", "admin")
	v.SetDefault("server.admin_password", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("maintenance.prune_interval", "1h")
	v.SetDefault("maintenance.prune_on_start", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load loads configuration from the specified file path. An empty path
// uses defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate artifact config
	if c.Artifact.ID == "" {
		return fmt.Errorf("artifact.id is required")
	}
	if strings.ContainsAny(c.Artifact.ID, " /") {
		return fmt.Errorf("artifact.id must not contain spaces or slashes")
	}
	if c.Artifact.URL != "" {
		u, err := url.Parse(c.Artifact.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("artifact.url must be an absolute http(s) url")
		}
	}
	if c.Artifact.DefaultChunkSizeMB <= 0 {
		return fmt.Errorf("artifact.default_chunk_size_mb must be positive")
	}
	if c.Artifact.Concurrency < 1 || c.Artifact.Concurrency > 16 {
		return fmt.Errorf("artifact.concurrency must be between 1 and 16")
	}

	// Validate store config
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store.driver: %s", c.Store.Driver)
	}

	// Validate backend config
	if _, ok := domain.ParseBackendKind(c.Backend.Forced); !ok {
		return fmt.Errorf("invalid backend.forced: %s", c.Backend.Forced)
	}

	// Validate durations
	durations := map[string]string{
		"artifact.probe_timeout":         c.Artifact.ProbeTimeout,
		"artifact.progress_log_interval": c.Artifact.ProgressLogInterval,
		"http.timeout":                   c.HTTP.Timeout,
		"http.response_header_timeout":   c.HTTP.ResponseHeaderTimeout,
		"backend.remote_timeout":         c.Backend.RemoteTimeout,
		"server.read_timeout":            c.Server.ReadTimeout,
		"server.write_timeout":           c.Server.WriteTimeout,
		"server.idle_timeout":            c.Server.IdleTimeout,
		"maintenance.prune_interval":     c.Maintenance.PruneInterval,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// RequireURL returns an error when no artifact url is configured
func (c *ArtifactConfig) RequireURL() error {
	if c.URL == "" {
		return fmt.Errorf("artifact.url is required")
	}
	return nil
}

// GetDefaultChunkSize returns the default chunk size in bytes
func (c *ArtifactConfig) GetDefaultChunkSize() int64 {
	if c.DefaultChunkSizeMB <= 0 {
		return 10 * domain.MB
	}
	return int64(c.DefaultChunkSizeMB) * domain.MB
}

// GetProbeTimeout returns the latency probe timeout as time.Duration
func (c *ArtifactConfig) GetProbeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ProbeTimeout)
	if d == 0 {
		return 3 * time.Second
	}
	return d
}

// GetProgressLogInterval returns the progress log interval as time.Duration
func (c *ArtifactConfig) GetProgressLogInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressLogInterval)
	return d
}

// GetTimeout returns the metadata request timeout as time.Duration
func (c *HTTPConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetResponseHeaderTimeout returns the response header timeout as time.Duration
func (c *HTTPConfig) GetResponseHeaderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ResponseHeaderTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetForced returns the forced backend, BackendAuto when none
func (c *BackendConfig) GetForced() domain.BackendKind {
	kind, ok := domain.ParseBackendKind(c.Forced)
	if !ok {
		return domain.BackendAuto
	}
	return kind
}

// GetRemoteTimeout returns the remote request timeout as time.Duration
func (c *BackendConfig) GetRemoteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.RemoteTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration. Zero means
// no limit, since /load can run for the whole download.
func (c *ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *ServerConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetPruneInterval returns the orphan prune interval as time.Duration
func (c *MaintenanceConfig) GetPruneInterval() time.Duration {
	d, _ := time.ParseDuration(c.PruneInterval)
	if d == 0 {
		return time.Hour
	}
	return d
}
