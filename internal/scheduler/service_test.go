package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "autoshout/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
		expr     string
	}{
		{name: "five-field cron", raw: "0 9 * * *", kind: SpecCron, source: "cron", expr: "0 9 * * *"},
		{name: "six-field cron", raw: "0 0 9 * * *", kind: SpecCron, source: "cron", expr: "0 0 9 * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron", expr: "0 0 * * *"},
		{name: "descriptor", raw: "@daily", kind: SpecCron, source: "cron", expr: "@daily"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute, expr: "@every 10m0s"},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second, expr: "@every 45s"},
		{name: "every prefix hhmm", raw: "every: 02:30", kind: SpecInterval, source: "hhmm", duration: 150 * time.Minute, expr: "@every 2h30m0s"},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute, expr: "@every 1h30m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if got.Expr() != tt.expr {
				t.Fatalf("Expr() = %q, want %q", got.Expr(), tt.expr)
			}
			if err := Validate(tt.raw); err != nil {
				t.Fatalf("Validate(%q): %v", tt.raw, err)
			}
		})
	}
}

func TestValidateInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0 99 * * *", "00:00", "-5m", "cron:", "01:75", "@fortnightly"} {
		if err := Validate(raw); err == nil {
			t.Fatalf("Validate(%q): expected error", raw)
		}
	}
}

func TestAddScheduleRunsAndSkipsOverlap(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	var calls atomic.Int32
	release := make(chan struct{})

	// Six-field form with seconds: fires every second.
	if err := s.AddSchedule("tick", "* * * * * *", func(ctx context.Context) error {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	s.Start(context.Background())

	time.Sleep(2500 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d while first run is blocked, want 1", n)
	}
	snap := s.Snapshot()
	if len(snap) != 1 || !snap[0].Running || snap[0].Next.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestAddScheduleUpsertAndRemove(t *testing.T) {
	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.AddSchedule("shout", "0 9 * * *", noop); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSchedule("shout", "0 10 * * *", noop); err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); len(snap) != 1 || snap[0].Spec != "0 10 * * *" {
		t.Fatalf("snapshot after upsert = %+v", snap)
	}
	if err := s.AddSchedule("bad", "61 * * * *", noop); err == nil {
		t.Fatal("expected invalid cron error")
	}
	s.Remove("shout")
	if snap := s.Snapshot(); len(snap) != 0 {
		t.Fatalf("snapshot after remove = %+v", snap)
	}
}

func TestAddOnce(t *testing.T) {
	s := New(Config{}, logx.Nop())
	if err := s.AddOnce("early", time.Now(), func(context.Context) error { return nil }); err != ErrNotStarted {
		t.Fatalf("before Start err = %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	done := make(chan struct{})
	if err := s.AddOnce("onlyonce", time.Now().Add(20*time.Millisecond), func(context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot did not fire")
	}

	var fired atomic.Bool
	_ = s.AddOnce("cancelled", time.Now().Add(50*time.Millisecond), func(context.Context) error {
		fired.Store(true)
		return nil
	})
	s.Remove("cancelled")
	time.Sleep(150 * time.Millisecond)
	if fired.Load() {
		t.Fatal("removed one-shot fired")
	}
}
