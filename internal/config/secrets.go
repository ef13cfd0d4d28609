package config

import (
	"os"
	"strings"
)

// fileSuffix marks an environment variable holding a path to a secret file.
const fileSuffix = "_FILE"

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(key)
}

// lookupEnv retrieves an environment variable and reports whether it is set,
// even when set to an empty string.
func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// getEnvOrFile retrieves a value from either a direct environment variable
// or a file path specified by the file key (Docker secrets pattern).
//
// If both are set, the file takes precedence. This allows local development
// with direct values while production uses Docker secrets.
//
// The file contents are trimmed of leading/trailing whitespace.
func getEnvOrFile(directKey, fileKey string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		if v, ok := readSecretFile(filePath); ok {
			return v
		}
		// If file read fails, fall through to direct value
	}

	return os.Getenv(directKey)
}

// collectPrefixed gathers every environment variable starting with prefix,
// keyed by the remainder of its name. A KEY_FILE variable supplies KEY from
// the named file and takes precedence over a direct KEY.
//
// Example: with prefix "DDNS_NETCUP_", DDNS_NETCUP_API_KEY=abc yields {"API_KEY": "abc"}.
func collectPrefixed(prefix string) map[string]string {
	settings := make(map[string]string)
	files := make(map[string]string)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if name == "" {
			continue
		}
		if strings.HasSuffix(name, fileSuffix) && len(name) > len(fileSuffix) {
			files[strings.TrimSuffix(name, fileSuffix)] = value
			continue
		}
		settings[name] = value
	}

	for name, path := range files {
		if v, ok := readSecretFile(path); ok {
			settings[name] = v
		}
	}

	return settings
}

func readSecretFile(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(content)), true
}

// normalizeName converts a strategy name to environment variable format.
// Example: "digital-ocean" → "DIGITAL_OCEAN"
func normalizeName(name string) string {
	normalized := strings.ToUpper(name)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}

// envPrefix creates the environment variable prefix for a post-update strategy.
// Example: "netcup" → "DDNS_NETCUP_"
func envPrefix(strategy string) string {
	return "DDNS_" + normalizeName(strategy) + "_"
}
