package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/httpapi"
	"schedbot/internal/notifier"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/scheduler"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	telegram "schedbot/internal/transport/telegram/adapter"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/sdnotify"
)

// App wires the config manager, transport adapter, scheduler, notifier and
// HTTP API together and owns their combined lifecycle.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	sched *scheduler.Service
	notif *notifier.Service
	api   *httpapi.Service

	updates chan kit.Update

	stopOnce sync.Once
	stopReq  chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Transport adapter (optional: the scheduler and API run without it).
	var adapter kit.Adapter
	var tgAdapter *telegram.Adapter
	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) != "" {
		bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tgAdapter, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, bootLog)
		if err != nil {
			return nil, err
		}
		adapter = tgAdapter
	}

	// Logging service. logx.New applies the config immediately, so we
	// bootstrap with the chat sink disabled and enable it afterwards,
	// avoiding a false warning before the sender target is known.
	baseLogCfg := mapLogxConfig(cfg, false)
	var sender logx.TextSender
	if tgAdapter != nil {
		sender = tgAdapter
	}
	logSvc, log := logx.New(baseLogCfg, sender)
	log = log.With(logx.String("comp", "app"))
	logSvc.Apply(mapLogxConfig(cfg, tgAdapter != nil))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	if adapter == nil {
		ncfg.Enabled = false
	}
	notifSvc := notifier.New(ncfg, adapter, log.With(logx.String("comp", "notifier")), bus)

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	var sink scheduler.Sink
	if ncfg.Enabled {
		sink = &notifySink{notif: notifSvc, log: log.With(logx.String("comp", "sink"))}
	} else {
		sink = &notifySink{log: log.With(logx.String("comp", "sink"))}
	}
	schedSvc := scheduler.New(scfg, store, sink, bus, log.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: adapter,
		sched:   schedSvc,
		notif:   notifSvc,
		updates: make(chan kit.Update, 256),
		stopReq: make(chan struct{}),
	}

	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.api = httpapi.New(apiCfg, httpapi.Deps{
		Scheduler:  schedSvc,
		Stats:      &transportStats{adapter: adapter},
		Control:    &processControl{a: a},
		Audit:      store,
		Deliveries: notifSvc,
	}, log.With(logx.String("comp", "httpapi")))

	return a, nil
}

// Scheduler exposes the scheduling service, e.g. for override callbacks.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// StopRequested is closed when a shutdown was requested over the API.
func (a *App) StopRequested() <-chan struct{} { return a.stopReq }

func (a *App) requestStop() {
	a.stopOnce.Do(func() { close(a.stopReq) })
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapAPIConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
	}
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.api.Enabled() {
		a.api.Start(a.sup.Context())
	}

	// Inbound chat messages are logged, not interpreted: scheduling is
	// driven over the HTTP API, deliveries go the other way.
	a.sup.Go0("updates.drain", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case up, ok := <-a.updates:
				if !ok {
					return
				}
				if up.Message == nil {
					continue
				}
				a.log.Debug("inbound message",
					logx.String("chat", up.Message.ChatID),
					logx.String("from", up.Message.FromUsername),
					logx.Bool("group", up.Message.IsGroup),
				)
			}
		}
	})

	// Event log for observability/debug (components can also subscribe themselves).
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Keep this debug-level; firing schedules can be chatty.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload config fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return sdnotify.Watchdog(c, a.log)
	})
	sdnotify.Ready()

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(ctx context.Context, old, cfg *config.Config) {
	sections, attrs := config.SummarizeChange(old, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "storage", "telegram", "scheduler":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	// Logging applies live.
	a.logs.Apply(mapLogxConfig(cfg, a.adapter != nil))

	// Notifier applies live, including enable/disable transitions.
	prevEnabled := a.notif.Enabled()
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		if a.adapter == nil {
			ncfg.Enabled = false
		}
		a.notif.Apply(ncfg)
		if prevEnabled && !ncfg.Enabled {
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		} else if !prevEnabled && ncfg.Enabled {
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	// The API restarts itself when its listen config changed.
	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		a.log.Warn("invalid api config; keeping previous", logx.Err(err))
	} else {
		a.api.Reconfigure(ctx, apiCfg)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdnotify.Stopping()

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", time.Since(start)),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// API first so no new mutations land while the scheduler drains.
	step("httpapi", 2*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	// The scheduler writes its final snapshot on Stop.
	step("scheduler", 3*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.adapter != nil {
		step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	}
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, drains).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
