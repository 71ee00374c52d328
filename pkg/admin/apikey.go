// API key authentication for the admin API.

package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// APIKeyLength is the length of generated keys in bytes.
	APIKeyLength = 32

	// APIKeyPrefix makes faultd keys identifiable in secret scanners.
	APIKeyPrefix = "fk_"

	// APIKeyHeader is the HTTP header carrying the key.
	APIKeyHeader = "X-API-Key"

	// APIKeyEnvVar overrides the key without touching config or disk.
	APIKeyEnvVar = "FAULTD_API_KEY"

	// DefaultKeyFileName is the file the generated key persists to.
	DefaultKeyFileName = "admin-api-key"
)

// APIKeyConfig holds API key authentication settings.
type APIKeyConfig struct {
	// Enabled controls whether a key is required at all.
	Enabled bool

	// Key is the API key. If empty and Enabled is true, one is loaded
	// from the environment or key file, or generated.
	Key string

	// KeyFilePath overrides where the generated key is stored.
	KeyFilePath string

	// AllowLocalhost exempts loopback clients from authentication.
	AllowLocalhost bool

	// ExemptPaths never require authentication. Health is always exempt.
	ExemptPaths []string
}

// DefaultAPIKeyConfig requires a key for non-loopback clients.
func DefaultAPIKeyConfig() APIKeyConfig {
	return APIKeyConfig{
		Enabled:        true,
		AllowLocalhost: true,
		ExemptPaths:    []string{"/health"},
	}
}

// apiKeyAuth holds authentication state.
type apiKeyAuth struct {
	config APIKeyConfig
	mu     sync.RWMutex
	key    []byte
	log    *slog.Logger
}

// newAPIKeyAuth resolves the key: config, environment, key file, or a
// fresh generated one persisted for next time.
func newAPIKeyAuth(config APIKeyConfig, log *slog.Logger) (*apiKeyAuth, error) {
	auth := &apiKeyAuth{config: config, log: log}

	if !config.Enabled {
		return auth, nil
	}

	if config.Key != "" {
		auth.setKey(config.Key)
		return auth, nil
	}

	if envKey := os.Getenv(APIKeyEnvVar); envKey != "" {
		auth.setKey(envKey)
		auth.log.Info("using API key from environment", "component", "admin", "var", APIKeyEnvVar)
		return auth, nil
	}

	keyPath := auth.keyFilePath()
	if key, err := loadKeyFromFile(keyPath); err == nil {
		auth.setKey(key)
		auth.log.Info("loaded API key from file", "component", "admin", "path", keyPath)
		return auth, nil
	}

	key, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	auth.setKey(key)

	if err := saveKeyToFile(keyPath, key); err != nil {
		auth.log.Warn("failed to persist API key, it is memory-only",
			"component", "admin", "path", keyPath, "error", err)
	} else {
		auth.log.Info("generated new API key", "component", "admin", "path", keyPath)
	}

	// Announce on stderr so the key is discoverable on first run.
	fmt.Fprintf(os.Stderr, "Admin API key: %s\n", key)
	fmt.Fprintf(os.Stderr, "  Set %s or use --no-auth to skip authentication.\n", APIKeyEnvVar)

	return auth, nil
}

// generateAPIKey creates a prefixed random key.
func generateAPIKey() (string, error) {
	buf := make([]byte, APIKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

func (a *apiKeyAuth) setKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.key = []byte(key)
}

// Key returns the active key, empty when auth is disabled.
func (a *apiKeyAuth) Key() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return string(a.key)
}

func (a *apiKeyAuth) keyFilePath() string {
	if a.config.KeyFilePath != "" {
		return a.config.KeyFilePath
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "faultd", DefaultKeyFileName)
}

func loadKeyFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("empty key file")
	}
	return key, nil
}

// saveKeyToFile writes the key with owner-only permissions.
func saveKeyToFile(path, key string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// validate compares in constant time.
func (a *apiKeyAuth) validate(providedKey string) bool {
	a.mu.RLock()
	key := a.key
	a.mu.RUnlock()
	if len(key) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedKey), key) == 1
}

func (a *apiKeyAuth) isExempt(path string) bool {
	if path == "/health" {
		return true
	}
	for _, exempt := range a.config.ExemptPaths {
		if path == exempt || strings.HasPrefix(path, exempt+"/") {
			return true
		}
	}
	return false
}

// isLocalhost reports whether the request originates from loopback.
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// middleware enforces API key authentication.
func (a *apiKeyAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.config.Enabled || a.isExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if a.config.AllowLocalhost && isLocalhost(r) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(APIKeyHeader)
		if apiKey == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "missing_api_key",
				"API key required via X-API-Key header or Authorization: Bearer <key>")
			return
		}
		if !a.validate(apiKey) {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
