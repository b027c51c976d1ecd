package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "autoshout/pkg/logx"
)

// Store is the persistence API used by the site statistics recorder and the
// shout plugin.
type Store interface {
	RecordSuccess(ctx context.Context, domain string, elapsed time.Duration, at time.Time) error
	RecordFailure(ctx context.Context, domain string, at time.Time) error
	SiteStats(ctx context.Context) ([]SiteStat, error)

	AppendRun(ctx context.Context, e RunEntry) error
	RecentRuns(ctx context.Context, limit int) ([]RunEntry, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
