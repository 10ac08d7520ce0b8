package config

import (
	"log/slog"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "STORAGE_DRIVER", "JWT_SECRET_KEY", "SERVER_PORT", "LOG_LEVEL",
		"LIFECYCLE_INTERVAL", "OVERLAP_WINDOW", "CORS_ALLOWED_ORIGINS",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("STORAGE_DRIVER", DriverMemory)
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != 8080 || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.LifecycleInterval != 30*time.Second || cfg.OverlapWindow != 90*time.Minute {
		t.Fatalf("lifecycle defaults = %s %s", cfg.LifecycleInterval, cfg.OverlapWindow)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("CORS default = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.R2.Enabled() {
		t.Fatalf("R2 enabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LIFECYCLE_INTERVAL", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != 9000 || cfg.LogLevel != slog.LevelDebug || cfg.LifecycleInterval != 5*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CORS = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"no secret":       {"JWT_SECRET_KEY": ""},
		"postgres no dsn": {"STORAGE_DRIVER": DriverPostgres},
		"unknown driver":  {"STORAGE_DRIVER": "bolt"},
		"bad port":        {"SERVER_PORT": "http"},
		"port range":      {"SERVER_PORT": "70000"},
		"bad level":       {"LOG_LEVEL": "loud"},
		"bad interval":    {"LIFECYCLE_INTERVAL": "soon"},
		"negative window": {"OVERLAP_WINDOW": "-1m"},
		"zero rate":       {"RATE_LIMIT_REQUESTS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
