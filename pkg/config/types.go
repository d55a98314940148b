package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"relaydesk/pkg/scoring"
)

// Config is the main configuration struct.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
	Allocation  AllocationConfig  `yaml:"allocation"`
	Grace       GraceConfig       `yaml:"grace"`
	StatusQueue StatusQueueConfig `yaml:"status_queue"`
	Events      EventsConfig      `yaml:"events"`
	Rescore     RescoreConfig     `yaml:"rescore"`
}

// ServerConfig holds http listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// StorageConfig holds the pebble path.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SecurityConfig holds API key classes and rate limiting.
type SecurityConfig struct {
	APIKeys struct {
		Backend []string `yaml:"backend"`
		Admin   []string `yaml:"admin"`
	} `yaml:"api_keys"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// AllocationConfig tunes candidate scanning and priority weights.
type AllocationConfig struct {
	// ScanWindow bounds the queued-conversation scan per allocate-next.
	ScanWindow int `yaml:"scan_window"`
	// Weights is the default alpha/beta blend; Tenants overrides it per
	// tenant id.
	Weights scoring.Weights            `yaml:"weights"`
	Tenants map[string]scoring.Weights `yaml:"tenants"`
}

// GraceConfig tunes the offline reclaim window and sweep cadence.
type GraceConfig struct {
	Window        Duration `yaml:"window"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// StatusQueueConfig tunes the in-process status-update retry queue.
type StatusQueueConfig struct {
	Capacity    int      `yaml:"capacity"`
	MaxAttempts int      `yaml:"max_attempts"`
	BaseBackoff Duration `yaml:"base_backoff"`
}

// EventsConfig enables the AMQP lifecycle event publisher.
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// RescoreConfig schedules the queued-score snapshot refresh job.
type RescoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// Defaults applied when the corresponding setting is absent.
const (
	DefaultScanWindow    = 100
	DefaultGraceWindow   = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
	DefaultQueueCapacity = 1024
	DefaultMaxAttempts   = 3
	DefaultBaseBackoff   = 500 * time.Millisecond
	DefaultRescoreCron   = "0 * * * *"
)

// ApplyDefaults fills zero-valued tunables in place.
func (c *Config) ApplyDefaults() {
	if c.Allocation.ScanWindow <= 0 {
		c.Allocation.ScanWindow = DefaultScanWindow
	}
	if c.Allocation.Weights == (scoring.Weights{}) {
		c.Allocation.Weights = scoring.DefaultWeights
	}
	if c.Grace.Window <= 0 {
		c.Grace.Window = Duration(DefaultGraceWindow)
	}
	if c.Grace.SweepInterval <= 0 {
		c.Grace.SweepInterval = Duration(DefaultSweepInterval)
	}
	if c.StatusQueue.Capacity <= 0 {
		c.StatusQueue.Capacity = DefaultQueueCapacity
	}
	if c.StatusQueue.MaxAttempts <= 0 {
		c.StatusQueue.MaxAttempts = DefaultMaxAttempts
	}
	if c.StatusQueue.BaseBackoff <= 0 {
		c.StatusQueue.BaseBackoff = Duration(DefaultBaseBackoff)
	}
	if c.Rescore.Cron == "" {
		c.Rescore.Cron = DefaultRescoreCron
	}
}

// WeightsFor returns the raw (un-normalized) weight pair for a tenant.
func (c *Config) WeightsFor(tenantID int64) scoring.Weights {
	if w, ok := c.Allocation.Tenants[strconv.FormatInt(tenantID, 10)]; ok {
		return w
	}
	return c.Allocation.Weights
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Duration is a time.Duration that unmarshals from yaml strings like
// "30s" or bare numeric seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

// D returns the wrapped time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }
