package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetEnv(t *testing.T) {
	const key = "TEST_DDNS_GETENV"
	const value = "test-value"

	os.Setenv(key, value)
	defer os.Unsetenv(key)

	got := getEnv(key)
	if got != value {
		t.Errorf("getEnv(%q) = %q, want %q", key, got, value)
	}
}

func TestGetEnvOrFile_DirectValue(t *testing.T) {
	const directKey = "TEST_DDNS_TOKEN"
	const fileKey = "TEST_DDNS_TOKEN_FILE"
	const value = "direct-token"

	os.Setenv(directKey, value)
	defer os.Unsetenv(directKey)
	os.Unsetenv(fileKey)

	got := getEnvOrFile(directKey, fileKey)
	if got != value {
		t.Errorf("getEnvOrFile() = %q, want %q", got, value)
	}
}

func TestGetEnvOrFile_FileValue(t *testing.T) {
	const directKey = "TEST_DDNS_TOKEN"
	const fileKey = "TEST_DDNS_TOKEN_FILE"
	const secretValue = "file-secret-value"

	// Create temp file with secret
	tmpDir := t.TempDir()
	secretFile := filepath.Join(tmpDir, "token")
	if err := os.WriteFile(secretFile, []byte(secretValue+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	os.Unsetenv(directKey)
	os.Setenv(fileKey, secretFile)
	defer os.Unsetenv(fileKey)

	got := getEnvOrFile(directKey, fileKey)
	if got != secretValue {
		t.Errorf("getEnvOrFile() = %q, want %q (file content trimmed)", got, secretValue)
	}
}

func TestGetEnvOrFile_FileTakesPrecedence(t *testing.T) {
	const directKey = "TEST_DDNS_TOKEN"
	const fileKey = "TEST_DDNS_TOKEN_FILE"
	const directValue = "direct-value"
	const fileValue = "file-value"

	// Create temp file
	tmpDir := t.TempDir()
	secretFile := filepath.Join(tmpDir, "token")
	if err := os.WriteFile(secretFile, []byte(fileValue), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv(directKey, directValue)
	os.Setenv(fileKey, secretFile)
	defer os.Unsetenv(directKey)
	defer os.Unsetenv(fileKey)

	got := getEnvOrFile(directKey, fileKey)
	if got != fileValue {
		t.Errorf("getEnvOrFile() = %q, want %q (file should take precedence)", got, fileValue)
	}
}

func TestGetEnvOrFile_NonexistentFile(t *testing.T) {
	const directKey = "TEST_DDNS_TOKEN"
	const fileKey = "TEST_DDNS_TOKEN_FILE"
	const directValue = "fallback-value"

	os.Setenv(directKey, directValue)
	os.Setenv(fileKey, "/nonexistent/path/to/secret")
	defer os.Unsetenv(directKey)
	defer os.Unsetenv(fileKey)

	got := getEnvOrFile(directKey, fileKey)
	if got != directValue {
		t.Errorf("getEnvOrFile() = %q, want %q (should fallback to direct value)", got, directValue)
	}
}

func TestCollectPrefixed(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	tmpDir := t.TempDir()
	secretFile := filepath.Join(tmpDir, "password")
	if err := os.WriteFile(secretFile, []byte("  from-file \n"), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("DDNS_NETCUP_API_KEY", "abc")
	os.Setenv("DDNS_NETCUP_API_PASSWORD", "direct")
	os.Setenv("DDNS_NETCUP_API_PASSWORD_FILE", secretFile)
	os.Setenv("DDNS_NETCUP_", "ignored")
	os.Setenv("DDNS_WEBHOOK_URL", "https://other.example.com")

	got := collectPrefixed("DDNS_NETCUP_")

	if len(got) != 2 {
		t.Fatalf("collectPrefixed() returned %d settings, want 2: %v", len(got), got)
	}
	if got["API_KEY"] != "abc" {
		t.Errorf("API_KEY = %q, want %q", got["API_KEY"], "abc")
	}
	if got["API_PASSWORD"] != "from-file" {
		t.Errorf("API_PASSWORD = %q, want %q (file takes precedence)", got["API_PASSWORD"], "from-file")
	}
}

func TestCollectPrefixed_UnreadableFile(t *testing.T) {
	clearAllEnv(t)
	defer clearAllEnv(t)

	os.Setenv("DDNS_CLOUDFLARE_API_TOKEN", "direct")
	os.Setenv("DDNS_CLOUDFLARE_API_TOKEN_FILE", "/nonexistent/token")

	got := collectPrefixed("DDNS_CLOUDFLARE_")
	if got["API_TOKEN"] != "direct" {
		t.Errorf("API_TOKEN = %q, want %q (fallback to direct value)", got["API_TOKEN"], "direct")
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"netcup", "NETCUP"},
		{"digital-ocean", "DIGITAL_OCEAN"},
		{"RFC2136", "RFC2136"},
		{"my-web-hook", "MY_WEB_HOOK"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := normalizeName(tt.input)
			if got != tt.expected {
				t.Errorf("normalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEnvPrefix(t *testing.T) {
	tests := []struct {
		strategy string
		expected string
	}{
		{"netcup", "DDNS_NETCUP_"},
		{"exec", "DDNS_EXEC_"},
		{"digitalocean", "DDNS_DIGITALOCEAN_"},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			got := envPrefix(tt.strategy)
			if got != tt.expected {
				t.Errorf("envPrefix(%q) = %q, want %q", tt.strategy, got, tt.expected)
			}
		})
	}
}
