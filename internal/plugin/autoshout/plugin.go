// Package autoshout glues the shout runner to its three triggers (cron, a
// one-shot after config load, chat commands) and to the persisted config.
package autoshout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"autoshout/internal/config"
	"autoshout/internal/eventbus"
	"autoshout/internal/notifier"
	rtsup "autoshout/internal/runtime/supervisor"
	"autoshout/internal/scheduler"
	"autoshout/internal/shout"
	"autoshout/internal/storage"
	"autoshout/internal/transport"
	logx "autoshout/pkg/logx"
)

const (
	Name = "autoshout"

	// ActionShout is the plugin.action tag that triggers a run.
	ActionShout = "shout"

	// DefaultCron fires daily at 09:00.
	DefaultCron = "0 9 * * *"

	onceDelay = 3 * time.Second
)

var (
	cronJob = Name + ":cron"
	onceJob = Name + ":once"
)

type Runner interface {
	Run(ctx context.Context, req shout.Request) shout.Report
}

type Scheduler interface {
	AddSchedule(name, spec string, job scheduler.Job) error
	AddOnce(name string, at time.Time, job scheduler.Job) error
	Remove(name string)
}

// ConfigStore is the persisted config. Save must write cfg back to disk.
type ConfigStore interface {
	Get() *config.Config
	Save(cfg *config.Config) error
}

type SitePruner interface {
	Prune(ids []string) ([]string, bool)
}

type RunLog interface {
	AppendRun(ctx context.Context, e storage.RunEntry) error
}

type Deps struct {
	Config    ConfigStore
	Sites     SitePruner
	Runner    Runner
	Scheduler Scheduler
	Runs      RunLog         // optional
	Notifier  shout.Notifier // optional; answers commands that hit a busy run
	Bus       eventbus.Bus
	Log       logx.Logger
}

type Plugin struct {
	deps Deps
	log  logx.Logger
	now  func() time.Time

	mu  sync.Mutex
	cfg config.ShoutConfig

	// running makes runs single-flight across triggers.
	running sync.Mutex

	sup   *rtsup.Supervisor
	unsub func()
}

func New(deps Deps) *Plugin {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Plugin{deps: deps, log: log.With(logx.String("plugin", Name)), now: time.Now}
}

// Config returns the shout config currently in effect.
func (p *Plugin) Config() config.ShoutConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneShout(p.cfg)
}

// SetConfig installs cfg as-is, without touching schedules. Used for
// one-off runs outside the long-running service.
func (p *Plugin) SetConfig(cfg config.ShoutConfig) {
	p.mu.Lock()
	p.cfg = cloneShout(cfg)
	p.mu.Unlock()
}

// Apply installs cfg: it drops site ids that no longer exist, (re)registers
// the cron schedule and, when onlyonce is set, schedules one run shortly
// after and clears the flag. The config is saved whenever it was changed here.
func (p *Plugin) Apply(ctx context.Context, cfg config.ShoutConfig) error {
	cfg = cloneShout(cfg)
	dirty := false

	if p.deps.Sites != nil {
		if ids, changed := p.deps.Sites.Prune(cfg.ShoutSites); changed {
			p.log.Info("dropped deleted sites from selection", logx.Int("before", len(cfg.ShoutSites)), logx.Int("after", len(ids)))
			cfg.ShoutSites = ids
			dirty = true
		}
	}

	var errs []error
	if cfg.Enabled {
		spec := strings.TrimSpace(cfg.Cron)
		if spec == "" {
			spec = DefaultCron
		}
		if err := p.deps.Scheduler.AddSchedule(cronJob, spec, p.job(shout.TriggerCron)); err != nil {
			errs = append(errs, err)
			p.log.Error("invalid shout schedule", logx.String("cron", spec), logx.Err(err))
		} else {
			p.log.Info("shout schedule registered", logx.String("cron", spec))
		}
	} else {
		p.deps.Scheduler.Remove(cronJob)
	}

	if cfg.OnlyOnce {
		at := p.now().Add(onceDelay)
		if err := p.deps.Scheduler.AddOnce(onceJob, at, p.job(shout.TriggerOnce)); err != nil {
			errs = append(errs, err)
			p.log.Error("one-shot run not scheduled", logx.Err(err))
		} else {
			p.log.Info("shout service started, running once", logx.Time("at", at))
		}
		cfg.OnlyOnce = false
		dirty = true
	}

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()

	if dirty {
		if err := p.persist(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start subscribes to plugin.action events.
func (p *Plugin) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sup != nil || p.deps.Bus == nil {
		return
	}
	p.sup = rtsup.New(ctx, rtsup.WithLogger(p.log))
	events, unsub := p.deps.Bus.Subscribe(16)
	p.unsub = unsub
	sup := p.sup
	sup.Go(Name+".events", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				origin, ok := originOf(ev)
				if !ok {
					continue
				}
				sup.Go(Name+".command", func(c context.Context) error {
					p.Shout(c, shout.TriggerCommand, origin)
					return nil
				})
			}
		}
	})
}

// Stop removes the plugin's schedules and waits for in-flight work until ctx is done.
func (p *Plugin) Stop(ctx context.Context) error {
	p.deps.Scheduler.Remove(cronJob)
	p.deps.Scheduler.Remove(onceJob)

	p.mu.Lock()
	sup, unsub := p.sup, p.unsub
	p.sup, p.unsub = nil, nil
	p.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// Shout is the single entry point of every trigger. origin is nil unless a
// chat command asked for the run. A run that starts while another is in
// progress is skipped; a skipped command gets a busy notice.
func (p *Plugin) Shout(ctx context.Context, trigger string, origin *shout.Origin) (shout.Report, bool) {
	if !p.running.TryLock() {
		p.log.Warn("shout run already in progress; skipping", logx.String("trigger", trigger))
		if origin != nil && p.deps.Notifier != nil {
			err := p.deps.Notifier.Notify(ctx, notifier.Message{
				Channel: origin.Channel,
				Target:  &transport.ChatTarget{ChatID: origin.ChatID, ThreadID: origin.ThreadID},
				UserID:  origin.UserID,
				Title:   shout.MsgBusy,
				Type:    notifier.TypePlugin,
			})
			if err != nil {
				p.log.Warn("notification not sent", logx.String("title", shout.MsgBusy), logx.Err(err))
			}
		}
		return shout.Report{}, false
	}
	defer p.running.Unlock()

	cfg := p.Config()
	rep := p.deps.Runner.Run(ctx, shout.Request{
		Trigger: trigger,
		Text:    cfg.ShoutText,
		SiteIDs: cfg.ShoutSites,
		Notify:  cfg.Notify,
		Origin:  origin,
	})
	if !rep.Dispatched {
		return rep, true
	}

	if err := p.persist(); err != nil {
		p.log.Warn("config save after run failed", logx.Err(err))
	}

	ok, fail := rep.Counts()
	if p.deps.Runs != nil {
		entry := storage.RunEntry{
			ID:      rep.RunID,
			At:      rep.Started,
			Trigger: rep.Trigger,
			Sites:   len(rep.Results),
			OK:      ok,
			Fail:    fail,
			TookMS:  rep.Took.Milliseconds(),
			Report:  rep.Text,
		}
		if err := p.deps.Runs.AppendRun(ctx, entry); err != nil {
			p.log.Warn("run history append failed", logx.Err(err))
		}
	}
	if p.deps.Bus != nil {
		p.deps.Bus.Publish(eventbus.Event{
			Type: eventbus.TypeShoutRun,
			Time: p.now(),
			Data: eventbus.RunEvent{RunID: rep.RunID, Trigger: rep.Trigger, Sites: len(rep.Results), OK: ok, Fail: fail, Took: rep.Took},
		})
	}
	return rep, true
}

func (p *Plugin) job(trigger string) scheduler.Job {
	return func(ctx context.Context) error {
		p.Shout(ctx, trigger, nil)
		return nil
	}
}

// persist writes the current shout config back through the config store.
func (p *Plugin) persist() error {
	if p.deps.Config == nil {
		return nil
	}
	cur := p.deps.Config.Get()
	if cur == nil {
		return errors.New("no config loaded")
	}
	next := cur.Clone()
	next.Shout = p.Config()
	return p.deps.Config.Save(next)
}

// originOf extracts the command origin from a plugin.action event for this plugin.
func originOf(ev eventbus.Event) (*shout.Origin, bool) {
	if ev.Type != eventbus.TypePluginAction {
		return nil, false
	}
	var d eventbus.ActionData
	switch v := ev.Data.(type) {
	case eventbus.ActionData:
		d = v
	case *eventbus.ActionData:
		if v == nil {
			return nil, false
		}
		d = *v
	default:
		return nil, false
	}
	if d.Action != ActionShout {
		return nil, false
	}
	return &shout.Origin{Channel: d.Channel, ChatID: d.ChatID, ThreadID: d.ThreadID, UserID: d.UserID}, true
}

func cloneShout(c config.ShoutConfig) config.ShoutConfig {
	c.ShoutSites = append([]string(nil), c.ShoutSites...)
	return c
}
