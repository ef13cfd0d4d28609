// Package config handles loading and validation of the ddnsnotify server
// configuration from environment variables and an optional config file.
package config

import (
	"time"
)

// Transport names accepted by DDNS_TRANSPORT.
const (
	TransportTCP  = "tcp"
	TransportHTTP = "http"
)

// Config holds the server configuration.
// All environment settings use the DDNS_ prefix.
type Config struct {
	// Auth is the shared secret clients must present.
	Auth string

	// Listener settings
	ListenAddr     string // host part of the listen address, empty for all interfaces
	Port           int
	Transport      string // tcp, http
	MaxConnections int

	// AuthTimeout bounds the raw-socket handshake, measured from accept.
	AuthTimeout time.Duration
	// AuthFailureDelay is the artificial latency before an HTTP 403.
	AuthFailureDelay time.Duration

	// Storage
	IPFile   string // persisted IP path
	AuditLog string // side audit log path, empty disables it

	// Logging configuration
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// HealthPort serves /health, /ready and /metrics when non-zero.
	HealthPort int

	PostUpdate PostUpdateConfig
}

// PostUpdateConfig selects the action run after the persisted IP changes.
type PostUpdateConfig struct {
	// Type is the strategy name (exec, netcup, cloudflare, ...). Empty disables it.
	Type string

	// Timeout bounds a single propagation attempt.
	Timeout time.Duration

	// Settings holds strategy-specific settings keyed by upper-case name
	// (e.g. "COMMAND", "API_KEY", "RECORDS").
	Settings map[string]string
}

// Enabled reports whether a post-update strategy is configured.
func (p PostUpdateConfig) Enabled() bool {
	return p.Type != ""
}

// ListenAddress returns the host:port the server binds.
func (c *Config) ListenAddress() string {
	return joinHostPort(c.ListenAddr, c.Port)
}

// Load reads configuration from the optional file at path (falling back to
// DDNS_CONFIG when path is empty), applies environment overrides and validates
// the result. A *ValidationError is returned when required settings are
// missing or invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigFilePath()
	}

	var errs []string

	cfg := defaults()
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, &ValidationError{Errors: []string{"config file: " + err.Error()}}
		}
		errs = append(errs, fileCfg.applyTo(cfg)...)
	}

	errs = append(errs, applyEnv(cfg)...)
	errs = append(errs, validateConfig(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// defaults returns a Config populated with default values only.
func defaults() *Config {
	return &Config{
		Transport:        DefaultTransport,
		MaxConnections:   DefaultMaxConnections,
		AuthTimeout:      DefaultAuthTimeout,
		AuthFailureDelay: DefaultAuthFailureDelay,
		AuditLog:         DefaultAuditLog,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		HealthPort:       DefaultHealthPort,
		PostUpdate: PostUpdateConfig{
			Timeout:  DefaultPostUpdateTimeout,
			Settings: make(map[string]string),
		},
	}
}
