// Package app wires config, storage, transport and the shout plugin into one
// process and keeps them in sync with the config file.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autoshout/internal/command"
	"autoshout/internal/config"
	"autoshout/internal/eventbus"
	"autoshout/internal/notifier"
	"autoshout/internal/plugin/autoshout"
	rtsup "autoshout/internal/runtime/supervisor"
	"autoshout/internal/scheduler"
	"autoshout/internal/shout"
	"autoshout/internal/sites"
	"autoshout/internal/sitestats"
	"autoshout/internal/storage"
	"autoshout/internal/transport"
	"autoshout/internal/transport/telegram"
	logx "autoshout/pkg/logx"
)

// ChannelTelegram is the channel name carried by commands coming from Telegram.
const ChannelTelegram = "telegram"

type Option func(*options)

type options struct {
	telegram bool
}

// WithTelegram controls whether a Telegram connection is made even when a
// token is configured. Defaults to true.
func WithTelegram(enabled bool) Option {
	return func(o *options) { o.telegram = enabled }
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter // nil when Telegram is not configured

	sched  *scheduler.Service
	notif  *notifier.Service
	sites  *sites.Registry
	stats  *sitestats.Recorder
	runner *shout.Runner
	plugin *autoshout.Plugin
	router *command.Router

	updates chan transport.Update
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	o := options{telegram: true}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     eventbus.New(),
		store:   store,
		updates: make(chan transport.Update, 256),
	}

	var ad transport.Adapter
	if o.telegram && strings.TrimSpace(cfg.Telegram.Token) != "" {
		tcfg, err := mapTelegramConfig(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.adapter, err = telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = a.adapter
	} else if o.telegram {
		log.Info("telegram token not set; notifications and commands are disabled")
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.notif = notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), a.bus)

	a.sched = scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler")))
	a.sites = sites.NewRegistry(cfg)
	a.stats = sitestats.New(store, log.With(logx.String("comp", "sitestats")))

	clients, err := buildClients(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.runner = shout.NewRunner(shout.Options{
		Sites:     a.sites,
		Stats:     a.stats,
		Notifier:  a.notif,
		Clients:   clients,
		UserAgent: cfg.HTTP.UserAgent,
		Log:       log.With(logx.String("comp", "shout")),
	})

	a.plugin = autoshout.New(autoshout.Deps{
		Config:    cfgm,
		Sites:     a.sites,
		Runner:    a.runner,
		Scheduler: a.sched,
		Runs:      store,
		Notifier:  a.notif,
		Bus:       a.bus,
		Log:       log,
	})

	a.router = command.NewRouter(ChannelTelegram, a.bus, log.With(logx.String("comp", "commands")),
		command.Route{Command: autoshout.ActionShout, Action: autoshout.ActionShout, Description: "send the shout now"},
	)
	a.router.SetOwners(cfg.Telegram.OwnerUserIDs)
	if a.adapter != nil {
		a.router.SetBotName(a.adapter.Username())
	}

	return a, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the long-lived service: Telegram polling, command routing,
// the scheduler, the notifier and config hot reload.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
		a.syncCommandMenu()
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.Run(c, a.updates)
		})
	}

	a.notif.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	a.plugin.Start(a.sup.Context())
	if err := a.plugin.Apply(a.sup.Context(), a.cfgm.Get().Shout); err != nil {
		// A bad cron keeps the service up: commands still work.
		a.log.Warn("shout config applied with errors", logx.Err(err))
	}

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Bool("telegram", a.adapter != nil), logx.String("config", a.cfgm.Path()))
	return nil
}

// applyConfig fans a reloaded config out to every component.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}
	if changed["storage"] {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if strings.TrimSpace(prev.Telegram.Token) != strings.TrimSpace(next.Telegram.Token) ||
		strings.TrimSpace(prev.Telegram.PollTimeout) != strings.TrimSpace(next.Telegram.PollTimeout) {
		a.log.Warn("telegram connection settings changed; restart required for changes to take effect")
	}

	if changed["logging"] {
		a.logs.Apply(mapLogConfig(next))
	}
	a.router.SetOwners(next.Telegram.OwnerUserIDs)

	if changed["telegram"] || changed["notifier"] {
		prevEnabled := a.notif.Enabled()
		ncfg, err := mapNotifierConfig(next)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(ncfg)
			switch {
			case prevEnabled && !a.notif.Enabled():
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			case !prevEnabled && a.notif.Enabled():
				a.log.Info("notifier enabled via config")
				a.notif.Start(ctx)
			}
		}
	}

	if changed["scheduler"] {
		a.sched.Apply(mapSchedulerConfig(next))
	}

	if changed["http"] {
		clients, err := buildClients(next)
		if err != nil {
			a.log.Warn("invalid http config; keeping previous", logx.Err(err))
		} else {
			a.runner.SetHTTP(clients, next.HTTP.UserAgent)
		}
	}

	if changed["sites"] {
		a.sites.Update(next)
	}
	// Site deletions can shrink the selection even when the shout section is untouched.
	if changed["shout"] || changed["sites"] {
		if err := a.plugin.Apply(ctx, next.Shout); err != nil {
			a.log.Warn("shout config applied with errors", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) syncCommandMenu() {
	routes := a.router.Routes()
	cmds := make([]telegram.BotCommand, 0, len(routes))
	for _, rt := range routes {
		cmds = append(cmds, telegram.BotCommand{Command: rt.Command, Description: rt.Description})
	}
	if err := a.adapter.SetCommands(cmds); err != nil {
		a.log.Warn("telegram command menu not updated", logx.Err(err))
	}
}

// RunOnce performs a single shout run with the loaded config and returns its
// report. Only the notifier is started, so the run's broadcast (if enabled)
// is delivered before returning.
func (a *App) RunOnce(ctx context.Context) (shout.Report, error) {
	a.notif.Start(ctx)
	a.plugin.SetConfig(a.cfgm.Get().Shout)
	rep, ran := a.plugin.Shout(ctx, shout.TriggerCLI, nil)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	a.notif.Stop(stopCtx)
	if !ran {
		return rep, errors.New("another shout run is in progress")
	}
	return rep, nil
}

// Stats returns the per-domain health table and the most recent runs.
func (a *App) Stats(ctx context.Context, limit int) ([]storage.SiteStat, []storage.RunEntry, error) {
	stats, err := a.stats.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	runs, err := a.store.RecentRuns(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	return stats, runs, nil
}

// Stop shuts everything down in dependency order. Each step is bounded so one
// component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("plugin", 4*time.Second, a.plugin.Stop)
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.adapter != nil {
		step("adapter", 2*time.Second, a.adapter.Stop)
	}
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Wait)
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
