package shout

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"autoshout/internal/notifier"
	"autoshout/internal/sites"
	"autoshout/internal/transport"
	logx "autoshout/pkg/logx"
)

// Options wires a Runner to its collaborators. Sites, Stats and Clients.Direct
// are required; Notifier may be nil.
type Options struct {
	Sites     SiteSource
	Stats     StatsRecorder
	Notifier  Notifier
	Clients   Clients
	UserAgent string
	Log       logx.Logger

	now func() time.Time
}

// Runner executes shout runs. It holds no per-run state, so one Runner may
// serve any number of runs; overlap is prevented by the caller.
type Runner struct {
	opt Options
	log logx.Logger

	httpMu sync.RWMutex
}

func NewRunner(opt Options) *Runner {
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	if strings.TrimSpace(opt.UserAgent) == "" {
		opt.UserAgent = DefaultUserAgent
	}
	if opt.now == nil {
		opt.now = time.Now
	}
	return &Runner{opt: opt, log: opt.Log}
}

// SetHTTP swaps the outbound clients and default user agent. Runs already
// in flight finish on whichever client each site picked up.
func (r *Runner) SetHTTP(clients Clients, userAgent string) {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	r.httpMu.Lock()
	r.opt.Clients = clients
	r.opt.UserAgent = userAgent
	r.httpMu.Unlock()
}

func (r *Runner) httpFor(useProxy bool) (Doer, string) {
	r.httpMu.RLock()
	defer r.httpMu.RUnlock()
	return r.opt.Clients.For(useProxy), r.opt.UserAgent
}

// poolSize bounds the dispatch pool: min(n, 1), so sites are shouted one at
// a time in list order.
func poolSize(n int) int {
	return min(n, 1)
}

// Run performs one shout run. It never returns an error: per-site failures
// are captured in the report.
func (r *Runner) Run(ctx context.Context, req Request) Report {
	rep := Report{
		RunID:   uuid.NewString(),
		Trigger: req.Trigger,
		Started: r.opt.now(),
	}
	log := r.log.With(logx.String("run_id", rep.RunID), logx.String("trigger", req.Trigger))

	if req.Origin != nil {
		log.Info("shout requested by command", logx.String("channel", req.Origin.Channel), logx.Int64("user_id", req.Origin.UserID))
		r.notifyOrigin(ctx, req.Origin, MsgStarting)
	}

	if len(req.SiteIDs) == 0 {
		log.Info("no sites selected; nothing to do")
		return rep
	}
	targets := sites.Select(r.opt.Sites.Candidates(), req.SiteIDs)
	if len(targets) == 0 {
		log.Info("no selected site is known; nothing to do", logx.Strings("selected", req.SiteIDs))
		return rep
	}

	log.Info("shout run started", logx.Int("sites", len(targets)))
	rep.Dispatched = true
	rep.Results = r.dispatch(ctx, req.Text, targets, log)
	rep.Took = r.opt.now().Sub(rep.Started)

	lines := make([]string, 0, len(rep.Results))
	for _, res := range rep.Results {
		lines = append(lines, res.Line())
	}
	rep.Text = strings.Join(lines, "\n")

	if len(rep.Results) > 0 {
		ok, fail := rep.Counts()
		log.Info("shout run complete", logx.Int("ok", ok), logx.Int("fail", fail), logx.Duration("took", rep.Took))
		if req.Notify {
			r.notify(ctx, notifier.Message{Title: ReportTitle, Text: rep.Text, Type: notifier.TypeSiteMessage})
		}
		if req.Origin != nil {
			r.notifyOrigin(ctx, req.Origin, MsgComplete)
		}
	} else {
		log.Error("shout run produced no results")
		if req.Origin != nil {
			r.notifyOrigin(ctx, req.Origin, MsgFailed)
		}
	}
	return rep
}

func (r *Runner) dispatch(ctx context.Context, text string, targets []sites.Site, log logx.Logger) []Result {
	results := make([]Result, len(targets))

	var g errgroup.Group
	g.SetLimit(poolSize(len(targets)))
	for i, site := range targets {
		g.Go(func() error {
			results[i] = r.shoutSite(ctx, site, text, log)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// shoutSite sends one shout and records the outcome.
func (r *Runner) shoutSite(ctx context.Context, site sites.Site, text string, log logx.Logger) Result {
	start := r.opt.now()
	ok, msg := r.shoutBase(ctx, site, text, log)
	res := Result{
		SiteID:   site.ID,
		SiteName: site.Label(),
		Domain:   DomainOf(site.URL),
		OK:       ok,
		Message:  msg,
		Elapsed:  max(r.opt.now().Sub(start), 0),
	}
	if ok {
		r.opt.Stats.RecordSuccess(ctx, res.Domain, res.Elapsed)
	} else {
		r.opt.Stats.RecordFailure(ctx, res.Domain)
	}
	return res
}

func (r *Runner) shoutBase(ctx context.Context, site sites.Site, text string, log logx.Logger) (bool, string) {
	log = log.With(logx.String("site", site.Label()))
	if err := site.Validate(); err != nil {
		log.Warn("site url or cookie not configured; cannot shout", logx.Err(err))
		return false, ""
	}

	client, ua := r.httpFor(site.Proxy)
	if site.UA != "" {
		ua = site.UA
	}
	req, err := newShoutRequest(ctx, site.URL, text, site.Cookie, ua)
	if err != nil {
		log.Warn("shout failed", logx.Err(err))
		return false, "shout failed: " + err.Error()
	}

	log.Info("shouting")
	resp, err := client.Do(req)
	if err != nil {
		msg := errorText(err)
		log.Warn("shout failed", logx.String("err", msg))
		return false, "shout failed: " + msg
	}
	if resp == nil {
		log.Warn("shout failed, unable to reach site")
		return false, msgUnreachable
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusOK {
		log.Info("shout succeeded")
		return true, msgSucceeded
	}
	log.Warn("shout failed", logx.Int("status", resp.StatusCode))
	return false, fmt.Sprintf("shout failed, status code: %d", resp.StatusCode)
}

func (r *Runner) notifyOrigin(ctx context.Context, o *Origin, title string) {
	r.notify(ctx, notifier.Message{
		Channel: o.Channel,
		Target:  &transport.ChatTarget{ChatID: o.ChatID, ThreadID: o.ThreadID},
		UserID:  o.UserID,
		Title:   title,
		Type:    notifier.TypePlugin,
	})
}

func (r *Runner) notify(ctx context.Context, m notifier.Message) {
	if r.opt.Notifier == nil {
		return
	}
	if err := r.opt.Notifier.Notify(ctx, m); err != nil {
		r.log.Warn("notification not sent", logx.String("title", m.Title), logx.Err(err))
	}
}
