package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadYAMLDurations(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
log_level: debug
detection:
  burst:
    window: 90s
    threshold: 4
  chain:
    min_interval: 20m
    max_interval: 40m
  ignore_actors: ["abc123"]
storage:
  enabled: true
  driver: badger
  dsn: ":memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detection.Burst.Window != 90*time.Second || cfg.Detection.Burst.Threshold != 4 {
		t.Fatalf("unexpected burst config %+v", cfg.Detection.Burst)
	}
	if cfg.Detection.Chain.MinInterval != 20*time.Minute || cfg.Detection.Chain.MaxInterval != 40*time.Minute {
		t.Fatalf("unexpected chain config %+v", cfg.Detection.Chain)
	}
	if cfg.Detection.Retention != 6*time.Hour {
		t.Fatalf("retention default not kept: %s", cfg.Detection.Retention)
	}
	if len(cfg.Detection.IgnoreActors) != 1 || cfg.Storage.Driver != "badger" {
		t.Fatalf("unexpected fields: %+v %+v", cfg.Detection.IgnoreActors, cfg.Storage)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"detection":{"burst":{"threshold":0},"retention":3600000000000},"api":{"enabled":true,"addr":":9999"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detection.Burst.Threshold != DefaultConfig().Detection.Burst.Threshold {
		t.Fatalf("zero threshold should fall back to default, got %d", cfg.Detection.Burst.Threshold)
	}
	if cfg.Detection.Retention != time.Hour || cfg.API.Addr != ":9999" {
		t.Fatalf("unexpected config %+v %+v", cfg.Detection, cfg.API)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(writeFile(t, "empty.yaml", "   \n")); err == nil {
		t.Fatalf("expected error for empty file")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	_, err := Load(writeFile(t, "bad.yaml", "detection:\n  chain:\n    min_interval: 50m\n    max_interval: 10m\n"))
	if err == nil || !strings.Contains(err.Error(), "min_interval") {
		t.Fatalf("expected interval validation error, got %v", err)
	}
}

func TestEnvTokenOverride(t *testing.T) {
	t.Setenv(EnvDiscordToken, " secret ")
	path := writeFile(t, "cfg.yaml", "ingest:\n  discord:\n    enabled: true\n    channel_id: \"42\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ingest.Discord.Token != "secret" {
		t.Fatalf("env token not applied: %q", cfg.Ingest.Discord.Token)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"discord without token", func(c *Config) { c.Ingest.Discord.Enabled = true; c.Ingest.Discord.ChannelID = "1" }},
		{"kafka without topic", func(c *Config) { c.Ingest.Kafka.Enabled = true; c.Ingest.Kafka.Brokers = []string{"b:9092"} }},
		{"unknown notifier", func(c *Config) {
			c.Notify.Destinations = []DestinationConfig{{Notifier: "pager", Target: "x"}}
		}},
		{"empty target", func(c *Config) {
			c.Notify.Destinations = []DestinationConfig{{Notifier: "webhook", Target: " "}}
		}},
		{"retention below max interval", func(c *Config) { c.Detection.Retention = time.Minute }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "etcd" }},
		{"unknown framing", func(c *Config) { c.Ingest.Parser.Framing = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		path := filepath.Join(t.TempDir(), name)
		cfg := DefaultConfig()
		cfg.Detection.Burst.Window = 45 * time.Second
		cfg.Notify.Destinations = []DestinationConfig{{Notifier: "webhook", Target: "http://example.invalid/hook"}}
		if err := Save(path, cfg); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if loaded.Detection.Burst.Window != 45*time.Second || len(loaded.Notify.Destinations) != 1 {
			t.Fatalf("%s round trip lost fields: %+v", name, loaded.Detection.Burst)
		}
	}
	if err := Save("", DefaultConfig()); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestManagerUpdateAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	next := DefaultConfig()
	next.Detection.Burst.Threshold = 7
	if err := m.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Get().Detection.Burst.Threshold != 7 {
		t.Fatalf("update not visible")
	}
	reloaded, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Detection.Burst.Threshold != 7 {
		t.Fatalf("update not persisted, got %d", reloaded.Detection.Burst.Threshold)
	}
	if err := m.Update(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}

	static := NewStaticManager(nil)
	if static.Get() == nil {
		t.Fatalf("static manager should hold defaults")
	}
	if _, err := static.Reload(); err == nil {
		t.Fatalf("static manager reload should fail")
	}
}
