package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_FullConfig(t *testing.T) {
	data := []byte(`
database:
  driver: mysql
  host: db.internal
  port: 3307
  name: bridge_prod
rate_limit:
  per_minute: 20
  per_hour: 200
  per_day: 1000
guard:
  token_file: /var/lib/bridge/tokens.json
  journal_file: /var/lib/bridge/journal.log
executor:
  timeout_seconds: 60
  sandbox_image: alpine:3
sweep:
  schedule: "0 * * * *"
conversation_ttl_hours: 6
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.Host != "db.internal" || cfg.Database.Port != 3307 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.RateLimit.PerMinute != 20 {
		t.Errorf("PerMinute = %d", cfg.RateLimit.PerMinute)
	}
	if cfg.Executor.TimeoutSeconds != 60 {
		t.Errorf("TimeoutSeconds = %d", cfg.Executor.TimeoutSeconds)
	}
	if cfg.ConversationTTLHours != 6 {
		t.Errorf("ConversationTTLHours = %d", cfg.ConversationTTLHours)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.RateLimit.PerMinute != 10 || cfg.RateLimit.PerHour != 100 || cfg.RateLimit.PerDay != 500 {
		t.Errorf("rate limit defaults = %+v", cfg.RateLimit)
	}
	if cfg.Executor.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want 30", cfg.Executor.TimeoutSeconds)
	}
	if cfg.Sweep.Schedule != "*/15 * * * *" {
		t.Errorf("Schedule = %q", cfg.Sweep.Schedule)
	}
	if cfg.ConversationTTLHours != 3 {
		t.Errorf("ConversationTTLHours = %d, want 3", cfg.ConversationTTLHours)
	}
	if !strings.HasSuffix(cfg.Guard.TokenFile, ".bridge/approval_tokens.json") {
		t.Errorf("TokenFile = %q", cfg.Guard.TokenFile)
	}
}

func TestDefault_MatchesEmptyParse(t *testing.T) {
	d := Default()
	p, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Database.Driver != p.Database.Driver || d.RateLimit != p.RateLimit {
		t.Errorf("Default() diverges from empty parse:\n%+v\n%+v", d, p)
	}
}

func TestParse_InvalidDriver(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: postgres\n"))
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "database.driver") {
		t.Errorf("err = %v", err)
	}
}

func TestParse_NegativeLimits(t *testing.T) {
	_, err := Parse([]byte("rate_limit:\n  per_minute: -1\n"))
	if err == nil {
		t.Fatal("expected error for negative rate limit")
	}
}

func TestParse_BadYAML(t *testing.T) {
	if _, err := Parse([]byte("database: [not a map")); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte("conversation_ttl_hours: 12\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConversationTTLHours != 12 {
		t.Errorf("ConversationTTLHours = %d, want 12", cfg.ConversationTTLHours)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
