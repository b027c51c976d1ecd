package shout

import (
	"context"
	"net/http"
	"time"

	"autoshout/internal/notifier"
	"autoshout/internal/sites"
)

// Status messages. The start notice goes to the command origin before
// resolution; the completion notice after dispatch.
const (
	MsgStarting = "starting shout run…"
	MsgComplete = "shout run complete"
	MsgFailed   = "shout run failed"

	// MsgBusy answers a command that arrives while another run is active.
	MsgBusy = "shout run already in progress"

	// ReportTitle is the title of the broadcast report.
	ReportTitle = "【Auto Shout】"

	msgSucceeded   = "shout succeeded"
	msgUnreachable = "shout failed, unable to reach site"
)

// Trigger names the path that started a run.
const (
	TriggerCron    = "cron"
	TriggerOnce    = "once"
	TriggerCommand = "command"
	TriggerCLI     = "cli"
)

// SiteSource lists the sites a shout may target: non-public indexers followed
// by custom sites when that feature is enabled.
type SiteSource interface {
	Candidates() []sites.Site
}

// StatsRecorder receives one outcome per attempted site. Implementations must
// be safe for concurrent use.
type StatsRecorder interface {
	RecordSuccess(ctx context.Context, domain string, elapsed time.Duration)
	RecordFailure(ctx context.Context, domain string)
}

type Notifier interface {
	Notify(ctx context.Context, m notifier.Message) error
}

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Origin identifies who asked for a command-triggered run.
type Origin struct {
	Channel  string
	ChatID   int64
	ThreadID int
	UserID   int64
}

// Request is one run. Origin is nil unless a command started the run.
type Request struct {
	Trigger string
	Text    string
	SiteIDs []string
	Notify  bool
	Origin  *Origin
}

// Result is the outcome of one site.
type Result struct {
	SiteID   string
	SiteName string
	Domain   string
	OK       bool
	Message  string
	Elapsed  time.Duration
}

// Line renders the result as a report line.
func (r Result) Line() string { return "【" + r.SiteName + "】" + r.Message }

// Report is the outcome of a run. Dispatched is false when the run stopped at
// resolution because nothing was selected.
type Report struct {
	RunID      string
	Trigger    string
	Dispatched bool
	Results    []Result
	Text       string
	Started    time.Time
	Took       time.Duration
}

// Counts returns the number of successful and failed sites.
func (r Report) Counts() (ok, fail int) {
	for _, res := range r.Results {
		if res.OK {
			ok++
		} else {
			fail++
		}
	}
	return ok, fail
}
