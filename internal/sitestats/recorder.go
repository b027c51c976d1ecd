// Package sitestats keeps per-domain health counters for shout targets.
package sitestats

import (
	"context"
	"sync"
	"time"

	"autoshout/internal/storage"
	logx "autoshout/pkg/logx"
)

// Recorder serializes health updates over a storage.Store.
// Storage errors are logged and swallowed: a stats hiccup must not fail a shout.
type Recorder struct {
	mu    sync.Mutex
	store storage.Store
	log   logx.Logger
	now   func() time.Time
}

func New(store storage.Store, log logx.Logger) *Recorder {
	if store == nil {
		store = storage.NewMemory()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

func (r *Recorder) RecordSuccess(ctx context.Context, domain string, elapsed time.Duration) {
	if domain == "" {
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.RecordSuccess(ctx, domain, elapsed, r.now()); err != nil {
		r.log.Warn("record success failed", logx.String("domain", domain), logx.Err(err))
	}
}

func (r *Recorder) RecordFailure(ctx context.Context, domain string) {
	if domain == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.RecordFailure(ctx, domain, r.now()); err != nil {
		r.log.Warn("record failure failed", logx.String("domain", domain), logx.Err(err))
	}
}

// Snapshot returns the current health record of every known domain, sorted by domain.
func (r *Recorder) Snapshot(ctx context.Context) ([]storage.SiteStat, error) {
	return r.store.SiteStats(ctx)
}
