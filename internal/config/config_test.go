package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearAllEnv removes all DDNS_ environment variables for clean test state.
func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(key, "DDNS_") {
			os.Unsetenv(key)
		}
	}
}

// setMinimalEnv sets the three required settings.
func setMinimalEnv(t *testing.T) {
	t.Helper()
	os.Setenv("DDNS_AUTH", "secret")
	os.Setenv("DDNS_PORT", "8053")
	os.Setenv("DDNS_IP_FILE", "/var/lib/ddns/ip")
}

func TestLoad_MinimalConfig(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	setMinimalEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Auth != "secret" {
		t.Errorf("Auth = %q, want %q", cfg.Auth, "secret")
	}
	if cfg.Port != 8053 {
		t.Errorf("Port = %d, want 8053", cfg.Port)
	}
	if cfg.Transport != DefaultTransport {
		t.Errorf("Transport = %q, want %q", cfg.Transport, DefaultTransport)
	}
	if cfg.MaxConnections != DefaultMaxConnections {
		t.Errorf("MaxConnections = %d, want %d", cfg.MaxConnections, DefaultMaxConnections)
	}
	if cfg.AuthTimeout != DefaultAuthTimeout {
		t.Errorf("AuthTimeout = %v, want %v", cfg.AuthTimeout, DefaultAuthTimeout)
	}
	if cfg.AuthFailureDelay != DefaultAuthFailureDelay {
		t.Errorf("AuthFailureDelay = %v, want %v", cfg.AuthFailureDelay, DefaultAuthFailureDelay)
	}
	if cfg.AuditLog != DefaultAuditLog {
		t.Errorf("AuditLog = %q, want %q", cfg.AuditLog, DefaultAuditLog)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.LogFormat != DefaultLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, DefaultLogFormat)
	}
	if cfg.PostUpdate.Enabled() {
		t.Errorf("PostUpdate enabled with type %q, want disabled", cfg.PostUpdate.Type)
	}
	if got := cfg.ListenAddress(); got != ":8053" {
		t.Errorf("ListenAddress() = %q, want %q", got, ":8053")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected error for missing settings")
	}

	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(valErr.Errors) != 3 {
		t.Errorf("expected 3 errors (auth, port, ip file), got %d: %v", len(valErr.Errors), valErr.Errors)
	}
	for _, want := range []string{EnvAuth, EnvPort, EnvIPFile} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}

func TestLoad_CompleteConfig(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	tmpDir := t.TempDir()
	authFile := filepath.Join(tmpDir, "auth")
	if err := os.WriteFile(authFile, []byte("file-secret\n"), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("DDNS_AUTH", "direct-secret")
	os.Setenv("DDNS_AUTH_FILE", authFile)
	os.Setenv("DDNS_PORT", "9000")
	os.Setenv("DDNS_LISTEN_ADDR", "127.0.0.1")
	os.Setenv("DDNS_TRANSPORT", "HTTP")
	os.Setenv("DDNS_IP_FILE", filepath.Join(tmpDir, "ip"))
	os.Setenv("DDNS_MAX_CONNECTIONS", "10")
	os.Setenv("DDNS_AUTH_TIMEOUT", "2s")
	os.Setenv("DDNS_AUTH_FAILURE_DELAY", "1s")
	os.Setenv("DDNS_AUDIT_LOG", "")
	os.Setenv("DDNS_LOG_LEVEL", "debug")
	os.Setenv("DDNS_LOG_FORMAT", "text")
	os.Setenv("DDNS_HEALTH_PORT", "9100")
	os.Setenv("DDNS_POST_UPDATE", "netcup")
	os.Setenv("DDNS_POST_UPDATE_TIMEOUT", "10s")
	os.Setenv("DDNS_NETCUP_API_KEY", "key")
	os.Setenv("DDNS_NETCUP_DOMAIN", "example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Auth != "file-secret" {
		t.Errorf("Auth = %q, want file-secret (file takes precedence)", cfg.Auth)
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %q, want %q", cfg.Transport, TransportHTTP)
	}
	if cfg.ListenAddress() != "127.0.0.1:9000" {
		t.Errorf("ListenAddress() = %q, want %q", cfg.ListenAddress(), "127.0.0.1:9000")
	}
	if cfg.MaxConnections != 10 {
		t.Errorf("MaxConnections = %d, want 10", cfg.MaxConnections)
	}
	if cfg.AuthTimeout != 2*time.Second {
		t.Errorf("AuthTimeout = %v, want 2s", cfg.AuthTimeout)
	}
	if cfg.AuthFailureDelay != time.Second {
		t.Errorf("AuthFailureDelay = %v, want 1s", cfg.AuthFailureDelay)
	}
	if cfg.AuditLog != "" {
		t.Errorf("AuditLog = %q, want empty (disabled)", cfg.AuditLog)
	}
	if cfg.HealthPort != 9100 {
		t.Errorf("HealthPort = %d, want 9100", cfg.HealthPort)
	}
	if cfg.PostUpdate.Type != "netcup" {
		t.Errorf("PostUpdate.Type = %q, want netcup", cfg.PostUpdate.Type)
	}
	if cfg.PostUpdate.Timeout != 10*time.Second {
		t.Errorf("PostUpdate.Timeout = %v, want 10s", cfg.PostUpdate.Timeout)
	}
	if cfg.PostUpdate.Settings["API_KEY"] != "key" {
		t.Errorf("Settings[API_KEY] = %q, want key", cfg.PostUpdate.Settings["API_KEY"])
	}
	if cfg.PostUpdate.Settings["DOMAIN"] != "example.com" {
		t.Errorf("Settings[DOMAIN] = %q, want example.com", cfg.PostUpdate.Settings["DOMAIN"])
	}
}

func TestLoad_PostIPPathSelectsExec(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	setMinimalEnv(t)
	os.Setenv("DDNS_POST_IP_PATH", "/opt/post_ip/post_ip")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.PostUpdate.Type != "exec" {
		t.Errorf("PostUpdate.Type = %q, want exec", cfg.PostUpdate.Type)
	}
	if cfg.PostUpdate.Settings["COMMAND"] != "/opt/post_ip/post_ip" {
		t.Errorf("Settings[COMMAND] = %q, want /opt/post_ip/post_ip", cfg.PostUpdate.Settings["COMMAND"])
	}
}

func TestLoad_PostIPPathIgnoredForOtherStrategies(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	setMinimalEnv(t)
	os.Setenv("DDNS_POST_UPDATE", "webhook")
	os.Setenv("DDNS_POST_IP_PATH", "/opt/post_ip/post_ip")
	os.Setenv("DDNS_WEBHOOK_URL", "https://hooks.example.com/ip")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.PostUpdate.Type != "webhook" {
		t.Errorf("PostUpdate.Type = %q, want webhook", cfg.PostUpdate.Type)
	}
	if _, ok := cfg.PostUpdate.Settings["COMMAND"]; ok {
		t.Error("COMMAND should not be set for the webhook strategy")
	}
	if cfg.PostUpdate.Settings["URL"] != "https://hooks.example.com/ip" {
		t.Errorf("Settings[URL] = %q", cfg.PostUpdate.Settings["URL"])
	}
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ddns.yml")
	content := `
server:
  auth: file-secret
  port: 7000
  transport: http
storage:
  ip_file: /srv/ip
logging:
  level: warn
post_update:
  type: cloudflare
  config:
    api_token: file-token
    records: home.example.com
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("DDNS_PORT", "7001")
	os.Setenv("DDNS_CLOUDFLARE_API_TOKEN", "env-token")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Auth != "file-secret" {
		t.Errorf("Auth = %q, want file-secret", cfg.Auth)
	}
	if cfg.Port != 7001 {
		t.Errorf("Port = %d, want 7001 (env overrides file)", cfg.Port)
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %q, want http", cfg.Transport)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.PostUpdate.Settings["API_TOKEN"] != "env-token" {
		t.Errorf("Settings[API_TOKEN] = %q, want env-token", cfg.PostUpdate.Settings["API_TOKEN"])
	}
	if cfg.PostUpdate.Settings["RECORDS"] != "home.example.com" {
		t.Errorf("Settings[RECORDS] = %q, want home.example.com", cfg.PostUpdate.Settings["RECORDS"])
	}
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ddns.toml")
	content := `
[server]
auth = "toml-secret"
port = 7100

[storage]
ip_file = "/srv/ip"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	os.Setenv("DDNS_CONFIG", configPath)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Auth != "toml-secret" || cfg.Port != 7100 || cfg.IPFile != "/srv/ip" {
		t.Errorf("unexpected config: auth=%q port=%d ip_file=%q", cfg.Auth, cfg.Port, cfg.IPFile)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	setMinimalEnv(t)

	_, err := Load("/nonexistent/ddns.yml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"DDNS_PORT": "abc"}, "DDNS_PORT"},
		{"port out of range", map[string]string{"DDNS_PORT": "70000"}, "DDNS_PORT"},
		{"bad transport", map[string]string{"DDNS_TRANSPORT": "udp"}, "DDNS_TRANSPORT"},
		{"zero max connections", map[string]string{"DDNS_MAX_CONNECTIONS": "0"}, "DDNS_MAX_CONNECTIONS"},
		{"bad auth timeout", map[string]string{"DDNS_AUTH_TIMEOUT": "soon"}, "DDNS_AUTH_TIMEOUT"},
		{"bad log level", map[string]string{"DDNS_LOG_LEVEL": "verbose"}, "DDNS_LOG_LEVEL"},
		{"bad log format", map[string]string{"DDNS_LOG_FORMAT": "xml"}, "DDNS_LOG_FORMAT"},
		{"unknown post update", map[string]string{"DDNS_POST_UPDATE": "route53"}, "DDNS_POST_UPDATE"},
		{"health port clash", map[string]string{"DDNS_HEALTH_PORT": "8053"}, "DDNS_HEALTH_PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAllEnv(t)
			defer clearAllEnv(t)

			setMinimalEnv(t)
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			_, err := Load("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %s", err.Error(), tt.wantErr)
			}
		})
	}
}
