package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Configuration defaults.
const (
	DefaultTransport         = TransportTCP
	DefaultMaxConnections    = 5
	DefaultAuthTimeout       = 5 * time.Second
	DefaultAuthFailureDelay  = 5 * time.Second
	DefaultAuditLog          = "logs/changed_ips.log"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultHealthPort        = 0
	DefaultPostUpdateTimeout = 30 * time.Second
)

// Environment variable names.
const (
	EnvConfig            = "DDNS_CONFIG"
	EnvAuth              = "DDNS_AUTH"
	EnvAuthFile          = "DDNS_AUTH_FILE"
	EnvListenAddr        = "DDNS_LISTEN_ADDR"
	EnvPort              = "DDNS_PORT"
	EnvTransport         = "DDNS_TRANSPORT"
	EnvMaxConnections    = "DDNS_MAX_CONNECTIONS"
	EnvAuthTimeout       = "DDNS_AUTH_TIMEOUT"
	EnvAuthFailureDelay  = "DDNS_AUTH_FAILURE_DELAY"
	EnvIPFile            = "DDNS_IP_FILE"
	EnvAuditLog          = "DDNS_AUDIT_LOG"
	EnvLogLevel          = "DDNS_LOG_LEVEL"
	EnvLogFormat         = "DDNS_LOG_FORMAT"
	EnvHealthPort        = "DDNS_HEALTH_PORT"
	EnvPostUpdate        = "DDNS_POST_UPDATE"
	EnvPostUpdateTimeout = "DDNS_POST_UPDATE_TIMEOUT"
	EnvPostIPPath        = "DDNS_POST_IP_PATH"
)

// applyEnv overrides cfg with every DDNS_* environment variable that is set.
// Returns a list of validation errors (may be empty).
func applyEnv(cfg *Config) []string {
	var errs []string

	if v := getEnvOrFile(EnvAuth, EnvAuthFile); v != "" {
		cfg.Auth = v
	}
	if v := getEnv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := getEnv(EnvTransport); v != "" {
		cfg.Transport = strings.ToLower(v)
	}
	if v := getEnv(EnvIPFile); v != "" {
		cfg.IPFile = v
	}
	// DDNS_AUDIT_LOG may be set to an empty string on purpose to disable the audit log
	if v, ok := lookupEnv(EnvAuditLog); ok {
		cfg.AuditLog = strings.TrimSpace(v)
	}
	if v := getEnv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getEnv(EnvLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	// Parse PORT
	if v := getEnv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid integer %q", EnvPort, v))
		} else {
			cfg.Port = port
		}
	}

	// Parse MAX_CONNECTIONS
	if v := getEnv(EnvMaxConnections); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid integer %q", EnvMaxConnections, v))
		} else {
			cfg.MaxConnections = n
		}
	}

	// Parse HEALTH_PORT
	if v := getEnv(EnvHealthPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid integer %q", EnvHealthPort, v))
		} else {
			cfg.HealthPort = port
		}
	}

	// Durations (Go duration format: 5s, 1m, etc.)
	errs = append(errs, parseDurationEnv(EnvAuthTimeout, &cfg.AuthTimeout)...)
	errs = append(errs, parseDurationEnv(EnvAuthFailureDelay, &cfg.AuthFailureDelay)...)
	errs = append(errs, parseDurationEnv(EnvPostUpdateTimeout, &cfg.PostUpdate.Timeout)...)

	applyPostUpdateEnv(&cfg.PostUpdate)

	return errs
}

// applyPostUpdateEnv resolves the post-update strategy and merges its
// DDNS_<TYPE>_* settings over the ones loaded from file.
func applyPostUpdateEnv(p *PostUpdateConfig) {
	if p.Settings == nil {
		p.Settings = make(map[string]string)
	}

	if v := getEnv(EnvPostUpdate); v != "" {
		p.Type = strings.ToLower(strings.TrimSpace(v))
	}

	// DDNS_POST_IP_PATH alone selects the exec strategy
	postIPPath := getEnv(EnvPostIPPath)
	if p.Type == "" && postIPPath != "" {
		p.Type = "exec"
	}
	if p.Type == "exec" && postIPPath != "" {
		p.Settings["COMMAND"] = postIPPath
	}

	if p.Type == "" {
		return
	}
	for k, v := range collectPrefixed(envPrefix(p.Type)) {
		p.Settings[k] = v
	}
}

func parseDurationEnv(key string, dst *time.Duration) []string {
	v := getEnv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return []string{fmt.Sprintf("%s: invalid duration %q (use format like 5s, 1m)", key, v)}
	}
	*dst = d
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
