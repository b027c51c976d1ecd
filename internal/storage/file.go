package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "autoshout/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.runs.jsonl          (append-only JSON Lines)
//   - <prefix>.stats.snapshot.json (periodic snapshot)
//   - <prefix>.stats.journal.jsonl (append-only journal of outcomes)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsPath string
	runsFile *os.File

	statsSnapshotPath string
	statsJournalFile  *os.File
	stats             map[string]SiteStat

	statWrites   int
	compactEvery int
}

type outcomeRecord struct {
	Domain    string `json:"domain"`
	OK        bool   `json:"ok"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	At        int64  `json:"at"` // unix milli
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	snapPath := prefix + ".stats.snapshot.json"
	journalPath := prefix + ".stats.journal.jsonl"

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	stats := map[string]SiteStat{}
	if err := loadStatsSnapshot(snapPath, stats); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("stats snapshot unreadable; starting from journal", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayStatsJournal(journalPath, stats); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("stats journal replay failed", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	return &fileStore{
		log:               log,
		runsPath:          runsPath,
		runsFile:          rf,
		statsSnapshotPath: snapPath,
		statsJournalFile:  jf,
		stats:             stats,
		compactEvery:      500,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2, err3 error
	if s.statsJournalFile != nil {
		err1 = s.compactLocked()
		err2 = s.statsJournalFile.Close()
		s.statsJournalFile = nil
	}
	if s.runsFile != nil {
		err3 = s.runsFile.Close()
		s.runsFile = nil
	}
	return errors.Join(err1, err2, err3)
}

func (s *fileStore) RecordSuccess(_ context.Context, domain string, elapsed time.Duration, at time.Time) error {
	return s.record(outcomeRecord{Domain: domain, OK: true, ElapsedMS: elapsed.Milliseconds(), At: at.UnixMilli()})
}

func (s *fileStore) RecordFailure(_ context.Context, domain string, at time.Time) error {
	return s.record(outcomeRecord{Domain: domain, OK: false, At: at.UnixMilli()})
}

func (s *fileStore) record(r outcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statsJournalFile == nil {
		return ErrClosed
	}

	if err := json.NewEncoder(s.statsJournalFile).Encode(r); err != nil {
		return err
	}
	applyOutcome(s.stats, r)

	s.statWrites++
	if s.statWrites%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("stats compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) SiteStats(context.Context) ([]SiteStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedStats(s.stats), nil
}

func (s *fileStore) AppendRun(_ context.Context, e RunEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.runsFile).Encode(e)
}

func (s *fileStore) RecentRuns(_ context.Context, limit int) ([]RunEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.runsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var runs []RunEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e RunEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		runs = append(runs, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tailRuns(runs, limit), nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.statsSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.stats); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.statsSnapshotPath); err != nil {
		return err
	}
	if err := s.statsJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.statsJournalFile.Seek(0, io.SeekEnd)
	return err
}

func loadStatsSnapshot(path string, out map[string]SiteStat) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]SiteStat
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayStatsJournal(path string, out map[string]SiteStat) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r outcomeRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Domain == "" {
			continue
		}
		applyOutcome(out, r)
	}
	return sc.Err()
}

func applyOutcome(m map[string]SiteStat, r outcomeRecord) {
	st := m[r.Domain]
	st.Domain = r.Domain
	at := time.UnixMilli(r.At)
	if r.OK {
		st = applySuccess(st, time.Duration(r.ElapsedMS)*time.Millisecond, at)
	} else {
		st = applyFailure(st, at)
	}
	m[r.Domain] = st
}
