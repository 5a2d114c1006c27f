package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "10s", want: 10 * time.Second},
		{raw: " 1m ", want: time.Minute},
		{raw: "-5s", wantErr: true},
		{raw: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("test.field", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDurationField(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("f", "", 42*time.Second)
	if err != nil || got != 42*time.Second {
		t.Fatalf("empty: got %v, %v", got, err)
	}
	got, err = ParseDurationOrDefault("f", "5s", 42*time.Second)
	if err != nil || got != 5*time.Second {
		t.Fatalf("explicit: got %v, %v", got, err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"api": {"enabled": true}, "surprise": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"api": {"enabled": true}} {"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"api": {"enabled": true, "addr": "127.0.0.1:9000", "token": "t"},
		"telegram": {"enabled": false, "token": ""},
		"logging": {"level": "DEBUG", "console": true},
		"scheduler": {"housekeeping": "@daily", "persist_debounce": "250ms"}
	}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !cfg.API.Enabled || cfg.API.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected api config: %+v", cfg.API)
	}
	if cfg.Scheduler.PersistDebounce != "250ms" {
		t.Fatalf("persist_debounce = %q", cfg.Scheduler.PersistDebounce)
	}
}

func TestParseYAMLCoercion(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
api:
  enabled: true
  addr: "127.0.0.1:9000"
logging:
  level: INFO
  console: true
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !cfg.API.Enabled || cfg.Logging.Level != "INFO" {
		t.Fatalf("yaml config not coerced: %+v", cfg)
	}
}

func TestSummarizeChangeSections(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.API.Enabled = true
	newCfg.API.Token = "secret"
	newCfg.Logging.Level = "DEBUG"

	sections, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"api": true, "logging": true}
	for _, s := range sections {
		delete(want, s)
	}
	if len(want) != 0 {
		t.Fatalf("sections = %v, missing %v", sections, want)
	}
}

func TestSummarizeChangeNoChanges(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Logging.Level = "INFO"
	sections, _ := SummarizeChange(cfg, cfg)
	if len(sections) != 0 {
		t.Fatalf("sections = %v, want none", sections)
	}
}
