package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty, "none" or "memory", an in-memory store is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SiteStat is the rolling health record of one site, keyed by domain.
type SiteStat struct {
	Domain       string        `json:"domain"`
	Success      int64         `json:"success"`
	Failure      int64         `json:"failure"`
	LastDuration time.Duration `json:"last_duration"`
	LastSuccess  time.Time     `json:"last_success,omitempty"`
	LastFailure  time.Time     `json:"last_failure,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// RunEntry records one shout run that reached dispatch.
type RunEntry struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Trigger string    `json:"trigger"`
	Sites   int       `json:"sites"`
	OK      int       `json:"ok"`
	Fail    int       `json:"fail"`
	TookMS  int64     `json:"took_ms"`
	Report  string    `json:"report,omitempty"`
}

func applySuccess(st SiteStat, elapsed time.Duration, at time.Time) SiteStat {
	st.Success++
	st.LastDuration = elapsed
	st.LastSuccess = at
	st.UpdatedAt = at
	return st
}

func applyFailure(st SiteStat, at time.Time) SiteStat {
	st.Failure++
	st.LastFailure = at
	st.UpdatedAt = at
	return st
}
