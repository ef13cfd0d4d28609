package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
// It is fatal at startup: the server exits before binding any listener.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// KnownPostUpdateTypes lists the accepted DDNS_POST_UPDATE values.
var KnownPostUpdateTypes = []string{"exec", "netcup", "cloudflare", "digitalocean", "rfc2136", "webhook"}

// validateConfig performs field and cross-field validation on the complete configuration.
// Returns a list of validation errors.
func validateConfig(cfg *Config) []string {
	var errs []string

	if cfg.Auth == "" {
		errs = append(errs, EnvAuth+": required but not set")
	}

	if cfg.Port == 0 {
		errs = append(errs, EnvPort+": required but not set")
	} else if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("%s: must be between 1 and 65535, got %d", EnvPort, cfg.Port))
	}

	if cfg.IPFile == "" {
		errs = append(errs, EnvIPFile+": required but not set")
	}

	switch cfg.Transport {
	case TransportTCP, TransportHTTP:
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("%s: invalid value %q (must be tcp or http)", EnvTransport, cfg.Transport))
	}

	if cfg.MaxConnections < 1 {
		errs = append(errs, fmt.Sprintf("%s: must be at least 1, got %d", EnvMaxConnections, cfg.MaxConnections))
	}

	if cfg.AuthTimeout <= 0 {
		errs = append(errs, EnvAuthTimeout+": must be positive")
	}
	if cfg.AuthFailureDelay < 0 {
		errs = append(errs, EnvAuthFailureDelay+": must not be negative")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("%s: invalid value %q (must be debug, info, warn, or error)", EnvLogLevel, cfg.LogLevel))
	}

	switch cfg.LogFormat {
	case "json", "text":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("%s: invalid value %q (must be json or text)", EnvLogFormat, cfg.LogFormat))
	}

	if cfg.HealthPort < 0 || cfg.HealthPort > 65535 {
		errs = append(errs, fmt.Sprintf("%s: must be between 0 and 65535, got %d", EnvHealthPort, cfg.HealthPort))
	} else if cfg.HealthPort != 0 && cfg.HealthPort == cfg.Port {
		errs = append(errs, fmt.Sprintf("%s: must differ from %s", EnvHealthPort, EnvPort))
	}

	if cfg.PostUpdate.Enabled() {
		if err := validatePostUpdateType(cfg.PostUpdate.Type); err != nil {
			errs = append(errs, err.Error())
		}
		if cfg.PostUpdate.Timeout <= 0 {
			errs = append(errs, EnvPostUpdateTimeout+": must be positive")
		}
	}

	return errs
}

// validatePostUpdateType checks that the strategy name is known.
func validatePostUpdateType(typeName string) error {
	for _, known := range KnownPostUpdateTypes {
		if typeName == known {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown type %q (valid types: %s)", EnvPostUpdate, typeName, strings.Join(KnownPostUpdateTypes, ", "))
}
