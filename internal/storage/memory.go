package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

const memoryRunCap = 500

type memoryStore struct {
	mu     sync.Mutex
	stats  map[string]SiteStat
	runs   []RunEntry
	closed bool
}

// NewMemory returns a process-local store.
func NewMemory() Store {
	return &memoryStore{stats: map[string]SiteStat{}}
}

func (s *memoryStore) RecordSuccess(_ context.Context, domain string, elapsed time.Duration, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	st := s.stats[domain]
	st.Domain = domain
	s.stats[domain] = applySuccess(st, elapsed, at)
	return nil
}

func (s *memoryStore) RecordFailure(_ context.Context, domain string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	st := s.stats[domain]
	st.Domain = domain
	s.stats[domain] = applyFailure(st, at)
	return nil
}

func (s *memoryStore) SiteStats(context.Context) ([]SiteStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedStats(s.stats), nil
}

func (s *memoryStore) AppendRun(_ context.Context, e RunEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.runs = append(s.runs, e)
	if len(s.runs) > memoryRunCap {
		s.runs = s.runs[len(s.runs)-memoryRunCap:]
	}
	return nil
}

func (s *memoryStore) RecentRuns(_ context.Context, limit int) ([]RunEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tailRuns(s.runs, limit), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func sortedStats(m map[string]SiteStat) []SiteStat {
	out := make([]SiteStat, 0, len(m))
	for _, st := range m {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// tailRuns returns the newest limit entries, newest first.
func tailRuns(runs []RunEntry, limit int) []RunEntry {
	if limit <= 0 || limit > len(runs) {
		limit = len(runs)
	}
	out := make([]RunEntry, 0, limit)
	for i := len(runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, runs[i])
	}
	return out
}
