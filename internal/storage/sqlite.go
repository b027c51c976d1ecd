package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "autoshout/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// runTimeLayout is fixed-width so that ORDER BY at sorts chronologically.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) RecordSuccess(ctx context.Context, domain string, elapsed time.Duration, at time.Time) error {
	ms := at.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_stats(domain, success, failure, last_ms, last_success, updated_at)
		 VALUES(?, 1, 0, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
		   success = success + 1,
		   last_ms = excluded.last_ms,
		   last_success = excluded.last_success,
		   updated_at = excluded.updated_at`,
		domain, elapsed.Milliseconds(), ms, ms,
	)
	return err
}

func (s *sqliteStore) RecordFailure(ctx context.Context, domain string, at time.Time) error {
	ms := at.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_stats(domain, success, failure, last_failure, updated_at)
		 VALUES(?, 0, 1, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
		   failure = failure + 1,
		   last_failure = excluded.last_failure,
		   updated_at = excluded.updated_at`,
		domain, ms, ms,
	)
	return err
}

func (s *sqliteStore) SiteStats(ctx context.Context) ([]SiteStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, success, failure, last_ms, last_success, last_failure, updated_at
		 FROM site_stats ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SiteStat
	for rows.Next() {
		var (
			st                    SiteStat
			lastMS, updated       int64
			lastSuccess, lastFail sql.NullInt64
		)
		if err := rows.Scan(&st.Domain, &st.Success, &st.Failure, &lastMS, &lastSuccess, &lastFail, &updated); err != nil {
			return nil, err
		}
		st.LastDuration = time.Duration(lastMS) * time.Millisecond
		if lastSuccess.Valid {
			st.LastSuccess = time.UnixMilli(lastSuccess.Int64)
		}
		if lastFail.Valid {
			st.LastFailure = time.UnixMilli(lastFail.Int64)
		}
		st.UpdatedAt = time.UnixMilli(updated)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, at, trigger, sites, ok, fail, took_ms, report)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.ID, e.At.UTC().Format(runTimeLayout), e.Trigger, e.Sites, e.OK, e.Fail, e.TookMS, nullStr(e.Report),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, trigger, sites, ok, fail, took_ms, report
		 FROM runs ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var (
			e      RunEntry
			at     string
			report sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Trigger, &e.Sites, &e.OK, &e.Fail, &e.TookMS, &report); err != nil {
			return nil, err
		}
		if t, err := time.Parse(runTimeLayout, at); err == nil {
			e.At = t
		}
		e.Report = report.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
