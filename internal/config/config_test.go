package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")

	cfg, err := Load(false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBFile != "hitch.db" {
		t.Errorf("expected default db file, got %s", cfg.DBFile)
	}
	if cfg.APIAddr != ":8080" {
		t.Errorf("expected default api addr, got %s", cfg.APIAddr)
	}
	if cfg.TokenExpiry != 24*time.Hour {
		t.Errorf("expected default token expiry, got %s", cfg.TokenExpiry)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	if _, err := Load(false); err == nil {
		t.Fatal("expected error without AUTH_SECRET")
	}
	// CLI commands don't need the secret.
	if _, err := Load(true); err != nil {
		t.Fatalf("cli mode should not require secret: %v", err)
	}
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("OPS_ADDR", "localhost:9998")

	path := filepath.Join(t.TempDir(), "hitch.toml")
	contents := "api_addr = \":7070\"\ntoken_expiry = \"1h\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HITCH_CONFIG", path)

	cfg, err := Load(false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIAddr != ":7070" {
		t.Errorf("expected api addr from file, got %s", cfg.APIAddr)
	}
	if cfg.TokenExpiry != time.Hour {
		t.Errorf("expected 1h expiry, got %s", cfg.TokenExpiry)
	}
	// Keys absent from the file keep their env values.
	if cfg.OpsAddr != "localhost:9998" {
		t.Errorf("expected ops addr from env, got %s", cfg.OpsAddr)
	}
}

func TestLoad_BadExpiry(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("TOKEN_EXPIRY", "not-a-duration")

	if _, err := Load(false); err == nil {
		t.Fatal("expected error for bad TOKEN_EXPIRY")
	}
}
