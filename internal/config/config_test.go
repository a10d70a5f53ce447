package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.CatalogTTLSeconds != 30 {
		t.Fatalf("catalog TTL default: got %d, want 30", cfg.CatalogTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token TTL default: got %d, want 480", cfg.AccessTokenTTLMinutes)
	}
	if cfg.SnapshotPath != "pos-snapshot.json" {
		t.Fatalf("snapshot path default: got %s", cfg.SnapshotPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CATALOG_TTL_SECONDS", "5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "60")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SNAPSHOT_PATH", "/tmp/state.json")

	cfg := Load()
	if cfg.CatalogTTLSeconds != 5 || cfg.AccessTokenTTLMinutes != 60 || cfg.RedisDB != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.SnapshotPath != "/tmp/state.json" {
		t.Fatalf("snapshot path override: got %s", cfg.SnapshotPath)
	}
}

func TestLoadIgnoresGarbageNumbers(t *testing.T) {
	t.Setenv("CATALOG_TTL_SECONDS", "banana")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-4")

	cfg := Load()
	if cfg.CatalogTTLSeconds != 30 || cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("garbage numbers should fall back to defaults: %+v", cfg)
	}
}

func TestValidateSecurity(t *testing.T) {
	good := Config{
		AuthSecret: "0123456789abcdef0123456789abcdef",
		ManagerPIN: "829471",
	}
	if err := good.ValidateSecurity(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"short secret", Config{AuthSecret: "short", ManagerPIN: "829471"}},
		{"short pin", Config{AuthSecret: good.AuthSecret, ManagerPIN: "12"}},
		{"common pin", Config{AuthSecret: good.AuthSecret, ManagerPIN: "123456"}},
		{"all same pin", Config{AuthSecret: good.AuthSecret, ManagerPIN: "777777"}},
		{"ascending pin", Config{AuthSecret: good.AuthSecret, ManagerPIN: "345678"}},
		{"descending pin", Config{AuthSecret: good.AuthSecret, ManagerPIN: "876543"}},
	}
	for _, tc := range cases {
		if err := tc.cfg.ValidateSecurity(); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}
