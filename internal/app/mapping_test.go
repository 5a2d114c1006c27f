package app

import (
	"testing"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/scheduler"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		cfg        *config.StorageConfig
		wantDriver string
		wantErr    bool
	}{
		{name: "omitted section defaults to file", cfg: nil, wantDriver: "file"},
		{name: "file with path", cfg: &config.StorageConfig{Driver: "file", Path: "./x"}, wantDriver: "file"},
		{name: "sqlite needs path", cfg: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "sqlite with path", cfg: &config.StorageConfig{Driver: "sqlite", Path: "./x.db"}, wantDriver: "sqlite"},
		{name: "unknown driver", cfg: &config.StorageConfig{Driver: "postgres"}, wantErr: true},
		{name: "bad busy timeout", cfg: &config.StorageConfig{Driver: "sqlite", Path: "./x.db", BusyTimeout: "soon"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Storage: tt.cfg}
			sc, err := mapStorageConfig(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", sc)
				}
				return
			}
			if err != nil {
				t.Fatalf("mapStorageConfig error: %v", err)
			}
			if sc.Driver != tt.wantDriver {
				t.Fatalf("Driver = %q, want %q", sc.Driver, tt.wantDriver)
			}
			if sc.Path == "" {
				t.Fatal("Path not defaulted")
			}
		})
	}
}

func TestMapNotifierConfigDefaults(t *testing.T) {
	t.Parallel()
	nc, err := mapNotifierConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapNotifierConfig error: %v", err)
	}
	if !nc.Enabled {
		t.Fatal("omitted notifier section should default to enabled")
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scheduler.PersistDebounce = "250ms"
	sc, err := mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatalf("mapSchedulerConfig error: %v", err)
	}
	if sc.PersistDebounce != 250*time.Millisecond {
		t.Fatalf("PersistDebounce = %v", sc.PersistDebounce)
	}

	cfg.Scheduler.Housekeeping = "61 * * * *"
	if _, err := mapSchedulerConfig(cfg); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
	cfg.Scheduler.Housekeeping = "off"
	if _, err := mapSchedulerConfig(cfg); err != nil {
		t.Fatalf("'off' rejected: %v", err)
	}
}

func TestMapAPIConfigTLSPairing(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.API.TLS.CertFile = "cert.pem"
	if _, err := mapAPIConfig(cfg); err == nil {
		t.Fatal("expected error for cert without key")
	}
	cfg.API.TLS.KeyFile = "key.pem"
	ac, err := mapAPIConfig(cfg)
	if err != nil {
		t.Fatalf("mapAPIConfig error: %v", err)
	}
	if ac.ReadTimeout != 10*time.Second || ac.IdleTimeout != time.Minute {
		t.Fatalf("timeout defaults not applied: %+v", ac)
	}
}

func TestFormatDelivery(t *testing.T) {
	t.Parallel()
	d := scheduler.Delivery{
		Command: "BACKUP",
		Answers: map[string]any{"target": "/srv", "mode": "full"},
	}
	got := formatDelivery(d)
	want := "BACKUP\nmode: full\ntarget: /srv"
	if got != want {
		t.Fatalf("formatDelivery = %q, want %q", got, want)
	}

	if got := formatDelivery(scheduler.Delivery{Command: "PING"}); got != "PING" {
		t.Fatalf("formatDelivery = %q", got)
	}
}
