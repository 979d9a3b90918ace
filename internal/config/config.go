// Package config loads the worker configuration file.
//
// Example YAML:
//
//	worker:
//	  id: 3
//	server:
//	  host: 10.0.0.5
//	  port: 8080
//	log:
//	  interval: 1s
//	  every: 100
//	storage:
//	  sqlite: /var/lib/lunge-worker/logs.db
//	registry:
//	  redis:
//	    addr: 10.0.0.6:6379
//	limits:
//	  memory: 262144000
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	lhttp "github.com/wesleyorama2/lunge-worker/internal/http"
	"github.com/wesleyorama2/lunge-worker/internal/logrelay"
)

// DefaultMemoryLimit is the default address-space ceiling of a task
// process.
const DefaultMemoryLimit = 250 << 20

// Config is the root worker configuration.
type Config struct {
	Worker   WorkerConfig   `yaml:"worker"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Registry RegistryConfig `yaml:"registry"`
	Limits   LimitsConfig   `yaml:"limits"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// WorkerConfig identifies this worker to the orchestrator.
type WorkerConfig struct {
	ID int `yaml:"id"`
	// UUID is generated when empty
	UUID string `yaml:"uuid,omitempty"`
}

// ServerConfig is the orchestrator address. An empty host disables status
// reporting over HTTP.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// URL returns the orchestrator base URL, or "" when no host is set.
func (s ServerConfig) URL() string {
	if s.Host == "" {
		return ""
	}
	if s.Port == 0 {
		return "http://" + s.Host
	}
	return "http://" + s.Host + ":" + strconv.Itoa(s.Port)
}

// LogConfig sets the cadence of the asynchronous run-log relay.
type LogConfig struct {
	Interval Duration `yaml:"interval,omitempty"`
	Every    int      `yaml:"every,omitempty"`
}

// AsyncOptions converts the section to relay options.
func (l LogConfig) AsyncOptions() logrelay.AsyncOptions {
	return logrelay.AsyncOptions{Interval: time.Duration(l.Interval), Every: l.Every}
}

// StorageConfig locates the log sink database.
type StorageConfig struct {
	SQLite string `yaml:"sqlite"`
}

// RegistryConfig selects the process registry. Redis is used when an
// address is set, otherwise one file per task under Dir.
type RegistryConfig struct {
	Redis RedisConfig `yaml:"redis,omitempty"`
	Dir   string      `yaml:"dir,omitempty"`
}

// RedisConfig is the Redis server holding the process registry.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// LimitsConfig bounds each task process.
type LimitsConfig struct {
	// Memory is the address-space ceiling in bytes. Zero disables it.
	Memory uint64 `yaml:"memory"`
}

// HTTPConfig tunes the HTTP client shared by a task's virtual users.
type HTTPConfig struct {
	Timeout             Duration `yaml:"timeout,omitempty"`
	MaxIdleConns        int      `yaml:"maxIdleConns,omitempty"`
	MaxIdleConnsPerHost int      `yaml:"maxIdleConnsPerHost,omitempty"`
	MaxConnsPerHost     int      `yaml:"maxConnsPerHost,omitempty"`
	IdleConnTimeout     Duration `yaml:"idleConnTimeout,omitempty"`
	InsecureSkipVerify  bool     `yaml:"insecureSkipVerify,omitempty"`
}

// Transport converts the section to client transport settings.
func (h HTTPConfig) Transport() lhttp.TransportConfig {
	return lhttp.TransportConfig{
		Timeout:             time.Duration(h.Timeout),
		MaxIdleConns:        h.MaxIdleConns,
		MaxIdleConnsPerHost: h.MaxIdleConnsPerHost,
		MaxConnsPerHost:     h.MaxConnsPerHost,
		IdleConnTimeout:     time.Duration(h.IdleConnTimeout),
		InsecureSkipVerify:  h.InsecureSkipVerify,
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Limits: LimitsConfig{Memory: DefaultMemoryLimit}}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Limits: LimitsConfig{Memory: DefaultMemoryLimit}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Worker.UUID == "" {
		cfg.Worker.UUID = uuid.NewString()
	}

	async := logrelay.DefaultAsyncOptions()
	if cfg.Log.Interval == 0 {
		cfg.Log.Interval = Duration(async.Interval)
	}
	if cfg.Log.Every == 0 {
		cfg.Log.Every = async.Every
	}

	if cfg.Storage.SQLite == "" {
		cfg.Storage.SQLite = "lunge-worker/logs.db"
	}
	if cfg.Registry.Dir == "" {
		cfg.Registry.Dir = "lunge-worker/procs"
	}

	transport := lhttp.DefaultTransportConfig()
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = Duration(transport.Timeout)
	}
	if cfg.HTTP.MaxIdleConns == 0 {
		cfg.HTTP.MaxIdleConns = transport.MaxIdleConns
	}
	if cfg.HTTP.MaxIdleConnsPerHost == 0 {
		cfg.HTTP.MaxIdleConnsPerHost = transport.MaxIdleConnsPerHost
	}
	if cfg.HTTP.IdleConnTimeout == 0 {
		cfg.HTTP.IdleConnTimeout = Duration(transport.IdleConnTimeout)
	}
}

// Duration is a time.Duration written as "30s", "2m" or "1h30m".
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
