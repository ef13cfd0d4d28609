package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the configuration file structure.
// YAML is the default; files ending in .toml are decoded as TOML.
type FileConfig struct {
	Server     *FileServerConfig     `yaml:"server,omitempty" toml:"server"`
	Storage    *FileStorageConfig    `yaml:"storage,omitempty" toml:"storage"`
	Logging    *FileLoggingConfig    `yaml:"logging,omitempty" toml:"logging"`
	Health     *FileHealthConfig     `yaml:"health,omitempty" toml:"health"`
	PostUpdate *FilePostUpdateConfig `yaml:"post_update,omitempty" toml:"post_update"`
}

// FileServerConfig holds listener and session settings.
type FileServerConfig struct {
	Auth             string `yaml:"auth,omitempty" toml:"auth"`
	ListenAddr       string `yaml:"listen_addr,omitempty" toml:"listen_addr"`
	Port             int    `yaml:"port,omitempty" toml:"port"`
	Transport        string `yaml:"transport,omitempty" toml:"transport"`             // tcp, http
	MaxConnections   int    `yaml:"max_connections,omitempty" toml:"max_connections"` // concurrent sessions
	AuthTimeout      string `yaml:"auth_timeout,omitempty" toml:"auth_timeout"`       // Go duration format
	AuthFailureDelay string `yaml:"auth_failure_delay,omitempty" toml:"auth_failure_delay"`
}

// FileStorageConfig holds persisted state settings.
type FileStorageConfig struct {
	IPFile   string  `yaml:"ip_file,omitempty" toml:"ip_file"`
	AuditLog *string `yaml:"audit_log,omitempty" toml:"audit_log"` // Pointer to distinguish unset from disabled
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
}

// FileHealthConfig holds health/metrics server settings.
type FileHealthConfig struct {
	Port int `yaml:"port,omitempty" toml:"port"`
}

// FilePostUpdateConfig selects and configures the post-update strategy.
type FilePostUpdateConfig struct {
	Type    string            `yaml:"type,omitempty" toml:"type"`
	Timeout string            `yaml:"timeout,omitempty" toml:"timeout"`
	Config  map[string]string `yaml:"config,omitempty" toml:"config"` // Strategy-specific settings
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// interpolateEnvVars interpolates environment variables in every string field.
func (c *FileConfig) interpolateEnvVars() {
	if c.Server != nil {
		c.Server.Auth = InterpolateEnvVars(c.Server.Auth)
		c.Server.ListenAddr = InterpolateEnvVars(c.Server.ListenAddr)
		c.Server.Transport = InterpolateEnvVars(c.Server.Transport)
		c.Server.AuthTimeout = InterpolateEnvVars(c.Server.AuthTimeout)
		c.Server.AuthFailureDelay = InterpolateEnvVars(c.Server.AuthFailureDelay)
	}

	if c.Storage != nil {
		c.Storage.IPFile = InterpolateEnvVars(c.Storage.IPFile)
		if c.Storage.AuditLog != nil {
			v := InterpolateEnvVars(*c.Storage.AuditLog)
			c.Storage.AuditLog = &v
		}
	}

	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}

	if c.PostUpdate != nil {
		c.PostUpdate.Type = InterpolateEnvVars(c.PostUpdate.Type)
		c.PostUpdate.Timeout = InterpolateEnvVars(c.PostUpdate.Timeout)
		for k, v := range c.PostUpdate.Config {
			c.PostUpdate.Config[k] = InterpolateEnvVars(v)
		}
	}
}

// LoadFile reads and parses a configuration file.
// Environment variables in ${VAR} format are interpolated.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	cfg.interpolateEnvVars()

	return &cfg, nil
}

// applyTo copies every value set in the file onto cfg.
// Environment variables are applied afterwards and take precedence.
func (c *FileConfig) applyTo(cfg *Config) []string {
	var errs []string

	if s := c.Server; s != nil {
		if s.Auth != "" {
			cfg.Auth = s.Auth
		}
		if s.ListenAddr != "" {
			cfg.ListenAddr = s.ListenAddr
		}
		if s.Port != 0 {
			cfg.Port = s.Port
		}
		if s.Transport != "" {
			cfg.Transport = strings.ToLower(s.Transport)
		}
		if s.MaxConnections != 0 {
			cfg.MaxConnections = s.MaxConnections
		}
		errs = append(errs, parseDurationField("server.auth_timeout", s.AuthTimeout, &cfg.AuthTimeout)...)
		errs = append(errs, parseDurationField("server.auth_failure_delay", s.AuthFailureDelay, &cfg.AuthFailureDelay)...)
	}

	if s := c.Storage; s != nil {
		if s.IPFile != "" {
			cfg.IPFile = s.IPFile
		}
		if s.AuditLog != nil {
			cfg.AuditLog = strings.TrimSpace(*s.AuditLog)
		}
	}

	if l := c.Logging; l != nil {
		if l.Level != "" {
			cfg.LogLevel = strings.ToLower(l.Level)
		}
		if l.Format != "" {
			cfg.LogFormat = strings.ToLower(l.Format)
		}
	}

	if h := c.Health; h != nil && h.Port != 0 {
		cfg.HealthPort = h.Port
	}

	if p := c.PostUpdate; p != nil {
		if p.Type != "" {
			cfg.PostUpdate.Type = strings.ToLower(p.Type)
		}
		errs = append(errs, parseDurationField("post_update.timeout", p.Timeout, &cfg.PostUpdate.Timeout)...)
		for k, v := range p.Config {
			// Normalize keys to uppercase for consistency with env var loading
			cfg.PostUpdate.Settings[strings.ToUpper(k)] = v
		}
	}

	return errs
}

func parseDurationField(field, value string, dst *time.Duration) []string {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return []string{fmt.Sprintf("%s: invalid duration %q", field, value)}
	}
	*dst = d
	return nil
}

// GetConfigFilePath returns the config file path from the environment.
// Returns empty string if no config file is specified.
func GetConfigFilePath() string {
	return os.Getenv(EnvConfig)
}
