package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Remote   RemoteConfig    `yaml:"remote"`
	State    StateConfig     `yaml:"state"`
	Monitor  MonitorDefaults `yaml:"monitor,omitempty"`
	Services []ServiceConfig `yaml:"services,omitempty"`
	Session  SessionConfig   `yaml:"session,omitempty"`
	Notify   NotifyConfig    `yaml:"notify"`
	Logging  LoggingConfig   `yaml:"logging"`
	Mirrors  *MirrorsConfig  `yaml:"mirrors,omitempty"`
	Archive  *ArchiveConfig  `yaml:"archive,omitempty"`
	Spool    *SpoolConfig    `yaml:"spool,omitempty"`
	Server   *ServerConfig   `yaml:"server,omitempty"`
	Metrics  *MetricsConfig  `yaml:"metrics,omitempty"`
	Health   *HealthConfig   `yaml:"health,omitempty"`
	Tracing  *TracingConfig  `yaml:"tracing,omitempty"`
}

// RemoteConfig defines the upstream file-hosting API connection
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	MaxRetries     int           `yaml:"max_retries,omitempty"`
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`
	RatePerSecond  float64       `yaml:"rate_per_second,omitempty"`
	RateBurst      int           `yaml:"rate_burst,omitempty"`
}

// StateConfig defines where tracked file positions are persisted
type StateConfig struct {
	Dir          string        `yaml:"dir"`
	SaveInterval time.Duration `yaml:"save_interval,omitempty"`
}

// MonitorDefaults are the per-service polling settings applied when a
// service entry does not override them
type MonitorDefaults struct {
	LogDir               string        `yaml:"log_dir,omitempty"`
	Interval             time.Duration `yaml:"interval,omitempty"`
	InterFileDelay       time.Duration `yaml:"inter_file_delay,omitempty"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors,omitempty"`
	MaxFilesPerTick      int           `yaml:"max_files_per_tick,omitempty"`
}

// ServiceConfig defines one service monitored from startup
type ServiceConfig struct {
	ServiceID string        `yaml:"service_id"`
	Token     string        `yaml:"token"`
	LogDir    string        `yaml:"log_dir,omitempty"`
	Interval  time.Duration `yaml:"interval,omitempty"`
	Feeds     []FeedConfig  `yaml:"feeds,omitempty"`
}

// FeedConfig maps an event category to a notification destination
type FeedConfig struct {
	Category    string        `yaml:"category"`
	Destination string        `yaml:"destination"`
	Template    string        `yaml:"template,omitempty"`
	Cooldown    time.Duration `yaml:"cooldown,omitempty"`
	Severity    string        `yaml:"severity,omitempty"` // info, warning, severe
}

// SessionConfig holds session store tuning
type SessionConfig struct {
	KillLogSize     int           `yaml:"kill_log_size,omitempty"`
	WindowRetention time.Duration `yaml:"window_retention,omitempty"`
	SessionMaxIdle  time.Duration `yaml:"session_max_idle,omitempty"`
}

// NotifyConfig defines the notification sink and routing defaults
type NotifyConfig struct {
	// Webhooks maps destination names to webhook URLs
	Webhooks        map[string]string `yaml:"webhooks"`
	Timeout         time.Duration     `yaml:"timeout,omitempty"`
	DefaultCooldown time.Duration     `yaml:"default_cooldown,omitempty"`

	// Feeds applies to services without their own feed list
	Feeds []FeedConfig `yaml:"feeds,omitempty"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// MirrorsConfig defines optional downstream event mirrors
type MirrorsConfig struct {
	Kafka         *KafkaMirrorConfig   `yaml:"kafka,omitempty"`
	Elasticsearch *ElasticMirrorConfig `yaml:"elasticsearch,omitempty"`
}

// KafkaMirrorConfig holds Kafka mirror configuration
type KafkaMirrorConfig struct {
	Brokers          []string `yaml:"brokers"`
	Topic            string   `yaml:"topic"`
	CompressionCodec string   `yaml:"compression_codec,omitempty"`
	RequiredAcks     int16    `yaml:"required_acks,omitempty"`
	ClientID         string   `yaml:"client_id,omitempty"`
}

// ElasticMirrorConfig holds Elasticsearch mirror configuration
type ElasticMirrorConfig struct {
	Addresses     []string      `yaml:"addresses"`
	Index         string        `yaml:"index"`
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	APIKey        string        `yaml:"api_key,omitempty"`
	BatchSize     int           `yaml:"batch_size,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// ArchiveConfig holds raw delta archival configuration
type ArchiveConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Prefix       string `yaml:"prefix,omitempty"`
	StorageClass string `yaml:"storage_class,omitempty"`
	Compression  string `yaml:"compression,omitempty"` // none, gzip, snappy
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

// SpoolConfig holds unrecognized-line spool configuration
type SpoolConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Dir           string        `yaml:"dir"`
	MaxEntries    int           `yaml:"max_entries,omitempty"`
	MaxAge        time.Duration `yaml:"max_age,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// ServerConfig holds the admin HTTP API configuration
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path,omitempty"`
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Address       string `yaml:"address"`
	LivenessPath  string `yaml:"liveness_path,omitempty"`
	ReadinessPath string `yaml:"readiness_path,omitempty"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// Default values
const (
	DefaultStateDir     = "/var/lib/logpatrol"
	DefaultSaveInterval = 5 * time.Second
	DefaultLogDir       = "/games/config"
	DefaultInterval     = 5 * time.Minute
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
)

// validCategories matches the classifier's taxonomy. Feed validation rejects
// anything else early rather than at dispatch time.
var validCategories = map[string]bool{
	"connection": true, "disconnection": true, "kill": true, "death": true,
	"base_building": true, "raid": true, "dynamic_event": true, "economy": true,
	"vehicle": true, "admin_action": true, "broadcast": true,
	"connection_issue": true, "player_position": true, "server_restart": true,
	"unrecognized": true,
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration
func (c *Config) applyDefaults() {
	if c.State.Dir == "" {
		c.State.Dir = DefaultStateDir
	}
	if c.State.SaveInterval == 0 {
		c.State.SaveInterval = DefaultSaveInterval
	}
	if c.Monitor.LogDir == "" {
		c.Monitor.LogDir = DefaultLogDir
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = DefaultInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Metrics != nil && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Health != nil {
		if c.Health.LivenessPath == "" {
			c.Health.LivenessPath = "/healthz"
		}
		if c.Health.ReadinessPath == "" {
			c.Health.ReadinessPath = "/readyz"
		}
	}

	for i := range c.Services {
		if len(c.Services[i].Feeds) == 0 {
			c.Services[i].Feeds = c.Notify.Feeds
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}

	for i, svc := range c.Services {
		if svc.ServiceID == "" {
			return fmt.Errorf("service %d has no service_id configured", i)
		}
		if svc.Token == "" {
			return fmt.Errorf("service %s has no token configured", svc.ServiceID)
		}
		if err := validateFeeds(svc.Feeds); err != nil {
			return fmt.Errorf("service %s: %w", svc.ServiceID, err)
		}
	}

	if err := validateFeeds(c.Notify.Feeds); err != nil {
		return err
	}
	// Every routed destination needs a webhook, so startup cannot outrun
	// what the sink can deliver. A config with no feeds needs no webhooks.
	for _, feed := range append(append([]FeedConfig{}, c.Notify.Feeds...), serviceFeeds(c.Services)...) {
		if feed.Destination != "" {
			if _, ok := c.Notify.Webhooks[feed.Destination]; !ok {
				return fmt.Errorf("feed destination %q has no webhook configured", feed.Destination)
			}
		}
	}

	if c.Mirrors != nil {
		if k := c.Mirrors.Kafka; k != nil {
			if len(k.Brokers) == 0 {
				return fmt.Errorf("mirrors.kafka.brokers is required")
			}
			if k.Topic == "" {
				return fmt.Errorf("mirrors.kafka.topic is required")
			}
		}
		if e := c.Mirrors.Elasticsearch; e != nil {
			if len(e.Addresses) == 0 {
				return fmt.Errorf("mirrors.elasticsearch.addresses is required")
			}
			if e.Index == "" {
				return fmt.Errorf("mirrors.elasticsearch.index is required")
			}
		}
	}

	if c.Archive != nil {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required")
		}
		if c.Archive.Region == "" {
			return fmt.Errorf("archive.region is required")
		}
	}

	if c.Spool != nil && c.Spool.Enabled && c.Spool.Dir == "" {
		return fmt.Errorf("spool.dir is required when the spool is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func validateFeeds(feeds []FeedConfig) error {
	for i, feed := range feeds {
		if feed.Category == "" {
			return fmt.Errorf("feed %d has no category configured", i)
		}
		if !validCategories[feed.Category] {
			return fmt.Errorf("feed %d has unknown category %q", i, feed.Category)
		}
		if feed.Destination == "" {
			return fmt.Errorf("feed %d has no destination configured", i)
		}
		switch feed.Severity {
		case "", "info", "warning", "severe":
		default:
			return fmt.Errorf("feed %d has invalid severity %q", i, feed.Severity)
		}
	}
	return nil
}

func serviceFeeds(services []ServiceConfig) []FeedConfig {
	var feeds []FeedConfig
	for _, svc := range services {
		feeds = append(feeds, svc.Feeds...)
	}
	return feeds
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL: "https://api.nitrado.net",
		},
		State: StateConfig{
			Dir:          DefaultStateDir,
			SaveInterval: DefaultSaveInterval,
		},
		Monitor: MonitorDefaults{
			LogDir:   DefaultLogDir,
			Interval: DefaultInterval,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
