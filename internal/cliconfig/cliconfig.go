// Package cliconfig resolves the admin endpoint and credentials for CLI
// commands. Resolution precedence, highest to lowest:
//
//  1. Command-line flags (handled by the caller, passed in resolved)
//  2. Environment variables (FAULTD_* prefix)
//  3. The API key file written by a locally running server
//  4. Default values
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvAdminURL  = "FAULTD_ADMIN_URL"
	EnvAdminPort = "FAULTD_ADMIN_PORT"
	EnvConfig    = "FAULTD_CONFIG"
	EnvAPIKey    = "FAULTD_API_KEY"
)

// DefaultAdminPort mirrors the server default. Kept here so the CLI does
// not need to import the server config package for one constant.
const DefaultAdminPort = 7460

// keyFileName is the file a locally running server persists its generated
// API key to, under the faultd data directory.
const keyFileName = "admin-api-key"

// DefaultAdminURL builds the loopback admin URL for a port.
func DefaultAdminURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// GetAdminURL resolves the admin API base URL: FAULTD_ADMIN_URL wins,
// then FAULTD_ADMIN_PORT against loopback, then the default port.
func GetAdminURL() string {
	if v := os.Getenv(EnvAdminURL); v != "" {
		return strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvAdminPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return DefaultAdminURL(port)
		}
	}
	return DefaultAdminURL(DefaultAdminPort)
}

// GetConfigFile returns the config file path from the environment, or
// empty when unset.
func GetConfigFile() string {
	return os.Getenv(EnvConfig)
}

// GetAPIKey resolves the admin API key: environment first, then the key
// file a local server would have written. Empty means unauthenticated.
func GetAPIKey() string {
	if v := os.Getenv(EnvAPIKey); v != "" {
		return v
	}
	key, err := LoadAPIKeyFromFile()
	if err != nil {
		return ""
	}
	return key
}

// GetAPIKeyFilePath returns the path the server persists its generated
// key to. Follows XDG_DATA_HOME with a ~/.local/share fallback.
func GetAPIKeyFilePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "faultd", keyFileName)
}

// LoadAPIKeyFromFile reads the persisted key file. A missing file is not
// an error, it returns empty.
func LoadAPIKeyFromFile() (string, error) {
	path := GetAPIKeyFilePath()
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading API key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
