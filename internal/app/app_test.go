package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"autoshout/internal/config"
)

func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		in      *config.StorageConfig
		driver  string
		busy    time.Duration
		wantErr bool
	}{
		{name: "omitted", in: nil, driver: "memory"},
		{name: "none", in: &config.StorageConfig{Driver: "none"}, driver: "memory"},
		{name: "file", in: &config.StorageConfig{Driver: "file", Path: "./data/x"}, driver: "file"},
		{name: "sqlite default busy", in: &config.StorageConfig{Driver: "SQLite", Path: "a.db"}, driver: "sqlite", busy: time.Second},
		{name: "sqlite busy", in: &config.StorageConfig{Driver: "sqlite3", Path: "a.db", BusyTimeout: "3s"}, driver: "sqlite3", busy: 3 * time.Second},
		{name: "sqlite no path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", in: &config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mapStorageConfig(&config.Config{Storage: tc.in})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Driver != tc.driver || got.BusyTimeout != tc.busy {
				t.Fatalf("got %+v, want driver=%s busy=%s", got, tc.driver, tc.busy)
			}
		})
	}
}

func TestMapNotifierConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.NotifyChat = "-100123"
	cfg.Telegram.NotifyThread = 7

	got, err := mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Enabled {
		t.Fatalf("omitted notifier section should default to enabled")
	}
	if got.DefaultTarget.ChatID != -100123 || got.DefaultTarget.ThreadID != 7 {
		t.Fatalf("unexpected default target: %+v", got.DefaultTarget)
	}

	cfg.Notifier = &config.NotifierConfig{Enabled: false, Workers: 4, RetryBase: "250ms"}
	got, err = mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Enabled || got.Workers != 4 || got.RetryBase != 250*time.Millisecond {
		t.Fatalf("unexpected mapping: %+v", got)
	}

	cfg.Telegram.NotifyChat = "@channel"
	if _, err := mapNotifierConfig(cfg); err == nil {
		t.Fatalf("expected error for non-numeric notify_chat")
	}
}

func TestValidateConfigRejectsBadCron(t *testing.T) {
	cfg := &config.Config{}
	cfg.Shout.Enabled = true
	cfg.Shout.Cron = "61 * * * *"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected invalid cron to be rejected")
	}
	cfg.Shout.Cron = "*/30 8-22 * * *"
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunOnceShoutsSelectedSites(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/shoutbox.php" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("shbox_text") != "hello" {
			t.Errorf("unexpected text %q", r.URL.Query().Get("shbox_text"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Indexers = []config.SiteConfig{
		{ID: "a", Name: "Site A", URL: srv.URL + "/", Cookie: "c=1"},
		{ID: "b", Name: "Site B", URL: srv.URL + "/"},
	}
	cfg.Shout = config.ShoutConfig{ShoutText: "hello", ShoutSites: []string{"a", "b", "gone"}}
	path := writeConfig(t, cfg)

	a, err := NewApp(path, WithTelegram(false))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer func() { _ = a.Stop(context.Background()) }()

	rep, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !rep.Dispatched || len(rep.Results) != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request (site b has no cookie), got %d", hits.Load())
	}
	if !strings.HasPrefix(rep.Text, "【Site A】") {
		t.Fatalf("unexpected report text %q", rep.Text)
	}

	stats, runs, err := a.Stats(context.Background(), 10)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Success != 1 || stats[0].Failure != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(runs) != 1 || runs[0].OK != 1 || runs[0].Fail != 1 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}
