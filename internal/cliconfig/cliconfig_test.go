package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetAdminURL(t *testing.T) {
	t.Setenv(EnvAdminURL, "")
	t.Setenv(EnvAdminPort, "")

	if got := GetAdminURL(); got != "http://127.0.0.1:7460" {
		t.Errorf("default admin URL = %q", got)
	}

	t.Setenv(EnvAdminPort, "9000")
	if got := GetAdminURL(); got != "http://127.0.0.1:9000" {
		t.Errorf("port env admin URL = %q", got)
	}

	t.Setenv(EnvAdminURL, "http://faultd.internal:7460/")
	if got := GetAdminURL(); got != "http://faultd.internal:7460" {
		t.Errorf("url env admin URL = %q", got)
	}
}

func TestGetAdminURLBadPort(t *testing.T) {
	t.Setenv(EnvAdminURL, "")
	t.Setenv(EnvAdminPort, "not-a-port")

	if got := GetAdminURL(); got != "http://127.0.0.1:7460" {
		t.Errorf("bad port should fall back to default, got %q", got)
	}
}

func TestGetAPIKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv(EnvAPIKey, "")

	if got := GetAPIKey(); got != "" {
		t.Errorf("no key anywhere, got %q", got)
	}

	keyDir := filepath.Join(dir, "faultd")
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, keyFileName), []byte("fk_from_file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := GetAPIKey(); got != "fk_from_file" {
		t.Errorf("file key = %q", got)
	}

	t.Setenv(EnvAPIKey, "fk_from_env")
	if got := GetAPIKey(); got != "fk_from_env" {
		t.Errorf("env should win over file, got %q", got)
	}
}
