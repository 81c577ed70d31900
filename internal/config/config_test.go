package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usedby.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.GitHub.Tier != "free" {
		t.Errorf("Tier = %q", cfg.GitHub.Tier)
	}
	if cfg.Store.Backend != "memory" || cfg.Queue.Enabled {
		t.Errorf("Store = %q, Queue.Enabled = %v", cfg.Store.Backend, cfg.Queue.Enabled)
	}
	if cfg.SweepInterval() != time.Hour {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval())
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9090"

[github]
tier = "paid"

[store]
backend = "redis"

[store.redis]
addr = "redis.internal:6379"
db = 2

[queue]
enabled = true
backend = "redis"
capacity = 500

[sweep]
interval = "30m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.GitHub.Tier != "paid" {
		t.Errorf("server/github = %+v / %+v", cfg.Server, cfg.GitHub)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.Redis.Addr != "redis.internal:6379" || cfg.Store.Redis.DB != 2 {
		t.Errorf("store = %+v", cfg.Store)
	}
	if !cfg.Queue.Enabled || cfg.Queue.Capacity != 500 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.SweepInterval() != 30*time.Minute {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval())
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[github]
tier = "dev"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitHub.Tier != "dev" {
		t.Errorf("Tier = %q", cfg.GitHub.Tier)
	}
	if cfg.Server.Addr != ":8080" || cfg.Store.Backend != "memory" {
		t.Errorf("defaults lost: %+v / %+v", cfg.Server, cfg.Store)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load accepted a missing explicit path")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadBadInterval(t *testing.T) {
	path := writeConfig(t, `
[sweep]
interval = "soonish"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load accepted an unparseable duration")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9090"

[github]
token = "from-file"
`)

	t.Setenv("USEDBY_ADDR", ":7070")
	t.Setenv("USEDBY_GITHUB_TOKEN", "from-env")
	t.Setenv("USEDBY_TIER", "paid")
	t.Setenv("USEDBY_REDIS_DB", "7")
	t.Setenv("USEDBY_QUEUE_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Addr = %q, want the env value", cfg.Server.Addr)
	}
	if cfg.GitHub.Token != "from-env" || cfg.GitHub.Tier != "paid" {
		t.Errorf("github = %+v", cfg.GitHub)
	}
	if cfg.Store.Redis.DB != 7 {
		t.Errorf("Redis.DB = %d", cfg.Store.Redis.DB)
	}
	if !cfg.Queue.Enabled {
		t.Error("Queue.Enabled not overridden")
	}
}

func TestEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("USEDBY_REDIS_DB", "many")
	t.Setenv("USEDBY_QUEUE_ENABLED", "sure")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Redis.DB != 0 || cfg.Queue.Enabled {
		t.Errorf("malformed env applied: db=%d enabled=%v", cfg.Store.Redis.DB, cfg.Queue.Enabled)
	}
}
