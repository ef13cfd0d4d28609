package dnsupdate

import (
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Default configuration values.
const (
	// DefaultPort is the standard DNS port.
	DefaultPort = 53

	// DefaultTimeout is the default timeout for DNS operations.
	DefaultTimeout = 10 * time.Second

	// DefaultTSIGAlgorithm is the default TSIG algorithm if none specified.
	DefaultTSIGAlgorithm = dns.HmacSHA256
)

// Config holds RFC 2136 client configuration.
type Config struct {
	// Server is the DNS server address. The port defaults to 53.
	Server string

	// Zone is the zone to update. Must end with a dot.
	Zone string

	// TSIGKeyName is the TSIG key name. Must end with a dot.
	TSIGKeyName string

	// TSIGSecret is the base64-encoded TSIG shared secret.
	TSIGSecret string

	// TSIGAlgorithm is one of hmac-md5, hmac-sha256, hmac-sha512.
	TSIGAlgorithm string

	// Timeout bounds each exchange with the server.
	Timeout time.Duration

	// UseTCP forces TCP transport instead of UDP.
	UseTCP bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server == "" {
		errs = append(errs, "server is required")
	}

	if c.Zone == "" {
		errs = append(errs, "zone is required")
	} else if !strings.HasSuffix(c.Zone, ".") {
		errs = append(errs, "zone must end with a dot (e.g., 'example.com.')")
	}

	// If any TSIG field is set, require key name and secret
	if c.TSIGKeyName != "" || c.TSIGSecret != "" || c.TSIGAlgorithm != "" {
		if c.TSIGKeyName == "" {
			errs = append(errs, "tsig key name is required when using TSIG authentication")
		} else if !strings.HasSuffix(c.TSIGKeyName, ".") {
			errs = append(errs, "tsig key name must end with a dot (e.g., 'ddns.')")
		}

		if c.TSIGSecret == "" {
			errs = append(errs, "tsig secret is required when using TSIG authentication")
		}

		if c.TSIGAlgorithm != "" && !isValidAlgorithm(c.GetTSIGAlgorithm()) {
			errs = append(errs, fmt.Sprintf("unsupported tsig algorithm: %s (supported: hmac-md5, hmac-sha256, hmac-sha512)", c.TSIGAlgorithm))
		}
	}

	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("dnsupdate config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetServer returns the server address with port.
func (c *Config) GetServer() string {
	if c.Server == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(c.Server); err == nil {
		return c.Server
	}
	return net.JoinHostPort(strings.Trim(c.Server, "[]"), strconv.Itoa(DefaultPort))
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// GetTSIGAlgorithm returns the TSIG algorithm in miekg/dns format.
func (c *Config) GetTSIGAlgorithm() string {
	return normalizeAlgorithm(c.TSIGAlgorithm)
}

// tsigFudge is the permitted clock skew in seconds.
const tsigFudge = 300

// tsigAlgorithms maps accepted spellings to miekg/dns algorithm names.
var tsigAlgorithms = map[string]string{
	"":             DefaultTSIGAlgorithm,
	"md5":          dns.HmacMD5,
	"hmac-md5":     dns.HmacMD5,
	dns.HmacMD5:    dns.HmacMD5,
	"sha256":       dns.HmacSHA256,
	"hmac-sha256":  dns.HmacSHA256,
	dns.HmacSHA256: dns.HmacSHA256,
	"sha512":       dns.HmacSHA512,
	"hmac-sha512":  dns.HmacSHA512,
	dns.HmacSHA512: dns.HmacSHA512,
}

// normalizeAlgorithm returns the miekg/dns name for alg, or alg unchanged
// when it is not a supported spelling.
func normalizeAlgorithm(alg string) string {
	if name, ok := tsigAlgorithms[strings.ToLower(strings.TrimSpace(alg))]; ok {
		return name
	}
	return alg
}

func isValidAlgorithm(alg string) bool {
	return alg == dns.HmacMD5 || alg == dns.HmacSHA256 || alg == dns.HmacSHA512
}

// signer signs UPDATE messages with one TSIG key.
type signer struct {
	key       string
	secret    string
	algorithm string
}

// signer returns the TSIG signer for c, or nil for unsigned updates.
func (c *Config) signer() (*signer, error) {
	if !c.HasTSIG() {
		return nil, nil
	}
	if _, err := base64.StdEncoding.DecodeString(c.TSIGSecret); err != nil {
		return nil, fmt.Errorf("tsig secret is not valid base64: %w", err)
	}
	algorithm := c.GetTSIGAlgorithm()
	if !isValidAlgorithm(algorithm) {
		return nil, fmt.Errorf("unsupported tsig algorithm: %s", c.TSIGAlgorithm)
	}
	return &signer{
		key:       dns.Fqdn(c.TSIGKeyName),
		secret:    c.TSIGSecret,
		algorithm: algorithm,
	}, nil
}

// secrets returns the key table for dns.Client.TsigSecret.
func (s *signer) secrets() map[string]string {
	if s == nil {
		return nil
	}
	return map[string]string{s.key: s.secret}
}

// sign adds the TSIG record; it must be the last change to msg.
func (s *signer) sign(msg *dns.Msg) {
	if s == nil {
		return
	}
	msg.SetTsig(s.key, s.algorithm, tsigFudge, 0)
}

// HasTSIG returns true if TSIG authentication is configured.
func (c *Config) HasTSIG() bool {
	return c.TSIGKeyName != "" && c.TSIGSecret != ""
}

// LoadConfigFromMap creates a Config from post-update settings.
// Zone and key names are made fully qualified.
//
// Required keys: SERVER, ZONE
// Optional keys: TSIG_KEY, TSIG_SECRET, TSIG_ALGORITHM, TCP
func LoadConfigFromMap(settings map[string]string) (*Config, error) {
	config := &Config{
		Server:        strings.TrimSpace(settings["SERVER"]),
		Zone:          fqdn(strings.TrimSpace(settings["ZONE"])),
		TSIGKeyName:   fqdn(strings.TrimSpace(settings["TSIG_KEY"])),
		TSIGSecret:    strings.TrimSpace(settings["TSIG_SECRET"]),
		TSIGAlgorithm: strings.TrimSpace(settings["TSIG_ALGORITHM"]),
	}

	if v := settings["TCP"]; v != "" {
		useTCP, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TCP value %q: %w", v, err)
		}
		config.UseTCP = useTCP
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// fqdn appends the root dot to non-empty names.
func fqdn(name string) string {
	if name == "" || strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}
