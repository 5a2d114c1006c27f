package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/internal/config"
	"schedbot/internal/httpapi"
	"schedbot/internal/notifier"
	"schedbot/internal/scheduler"
	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

func mapLogxConfig(cfg *config.Config, haveSender bool) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled && haveSender,
			ChatID:     cfg.Logging.Chat.ChatID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
	return lc
}

// mapStorageConfig always yields a usable config: persistence is not
// optional here, the schedule must survive restarts. An omitted section
// means the file driver with a default path.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "file", Path: "./data/schedbot"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file":
		if path == "" {
			path = "./data/schedbot"
		}
		return storage.Config{Driver: "file", Path: path, Audit: sc.Audit}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, Audit: sc.Audit, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapNotifierConfig treats an omitted section as enabled-with-defaults;
// the notifier fills in its own worker/queue/rate defaults on Apply.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{Enabled: true}, nil
	}
	nc := cfg.Notifier
	if nc.Workers < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.workers must be >= 0")
	}
	if nc.QueueSize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	}
	retryBase, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       nc.Enabled,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	debounce, err := config.ParseDurationOrDefault("scheduler.persist_debounce", cfg.Scheduler.PersistDebounce, 100*time.Millisecond)
	if err != nil {
		return scheduler.Config{}, err
	}
	if spec := strings.TrimSpace(cfg.Scheduler.Housekeeping); spec != "" && !strings.EqualFold(spec, "off") {
		if _, err := cron.ParseStandard(spec); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.housekeeping: invalid cron spec %q: %w", spec, err)
		}
	}
	return scheduler.Config{
		Housekeeping:    cfg.Scheduler.Housekeeping,
		PersistDebounce: debounce,
	}, nil
}

func mapAPIConfig(cfg *config.Config) (httpapi.Config, error) {
	readTO, err := config.ParseDurationOrDefault("api.read_timeout", cfg.API.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	writeTO, err := config.ParseDurationOrDefault("api.write_timeout", cfg.API.WriteTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	idleTO, err := config.ParseDurationOrDefault("api.idle_timeout", cfg.API.IdleTimeout, time.Minute)
	if err != nil {
		return httpapi.Config{}, err
	}
	tc := cfg.API.TLS
	if (tc.CertFile == "") != (tc.KeyFile == "") {
		return httpapi.Config{}, fmt.Errorf("api.tls: cert_file and key_file must be set together")
	}
	return httpapi.Config{
		Enabled:      cfg.API.Enabled,
		Addr:         cfg.API.Addr,
		Token:        cfg.API.Token,
		TLSCertFile:  tc.CertFile,
		TLSKeyFile:   tc.KeyFile,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
		IdleTimeout:  idleTO,
	}, nil
}
