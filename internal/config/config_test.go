package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port == "" || cfg.Env == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Addr() != cfg.Host+":"+cfg.Port {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadProductionGuards(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("POSTGRES_PASSWORD", "")
	if _, err := Load(); err == nil {
		t.Error("expected error for default db password in production")
	}

	t.Setenv("POSTGRES_PASSWORD", "strong")
	t.Setenv("AUTH_JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Error("expected error for missing jwt secret in production")
	}

	t.Setenv("AUTH_JWT_SECRET", "secret")
	if _, err := Load(); err != nil {
		t.Errorf("Load with production values: %v", err)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "5432", DBName: "d"}
	want := "postgres://u:p@h:5432/d?sslmode=disable"
	if cfg.DSN() != want {
		t.Errorf("DSN() = %q, want %q", cfg.DSN(), want)
	}
}
