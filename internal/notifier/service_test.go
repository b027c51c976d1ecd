package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autoshout/internal/eventbus"
	"autoshout/internal/transport"
	logx "autoshout/pkg/logx"
)

type sent struct {
	to   transport.ChatTarget
	text string
}

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []sent
	fails int // fail the first n sends
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return transport.MessageRef{}, errors.New("telegram: 502")
	}
	f.sent = append(f.sent, sent{to: to, text: text})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		RatePerSec:    100,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		DefaultTarget: transport.ChatTarget{ChatID: -100, ThreadID: 7},
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	tests := []struct {
		m    Message
		want string
	}{
		{Message{Title: "【Auto Shout】", Text: "【A】shout succeeded\n【B】x"}, "【Auto Shout】\n\n【A】shout succeeded\n【B】x"},
		{Message{Text: "starting shout run…"}, "starting shout run…"},
		{Message{Title: "only title"}, "only title"},
		{Message{}, ""},
	}
	for _, tt := range tests {
		if got := tt.m.Render(); got != tt.want {
			t.Fatalf("Render(%+v) = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestBroadcastGoesToDefaultTarget(t *testing.T) {
	ad := &fakeAdapter{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(testConfig(), ad, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Message{Title: "【Auto Shout】", Text: "【A】shout succeeded", Type: TypeSiteMessage}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	direct := transport.ChatTarget{ChatID: 42}
	if err := s.Notify(context.Background(), Message{Target: &direct, Text: "shout run complete", Type: TypePlugin}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	waitFor(t, func() bool { return len(ad.messages()) == 2 })
	got := ad.messages()
	byChat := map[int64]sent{}
	for _, m := range got {
		byChat[m.to.ChatID] = m
	}
	if b := byChat[-100]; b.to.ThreadID != 7 || b.text != "【Auto Shout】\n\n【A】shout succeeded" {
		t.Fatalf("broadcast = %+v", b)
	}
	if d := byChat[42]; d.text != "shout run complete" {
		t.Fatalf("direct = %+v", d)
	}

	seen := map[string]bool{}
	waitFor(t, func() bool {
		for {
			select {
			case ev := <-events:
				seen[ev.Type] = true
			default:
				return seen[EventQueued] && seen[EventSent]
			}
		}
	})
	if len(s.Snapshot()) != 2 {
		t.Fatalf("history = %+v", s.Snapshot())
	}
}

func TestRetryThenSucceed(t *testing.T) {
	ad := &fakeAdapter{fails: 2}
	s := New(testConfig(), ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Message{Text: "hi"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return len(ad.messages()) == 1 })
}

func TestNotifyErrors(t *testing.T) {
	ctx := context.Background()

	disabled := testConfig()
	disabled.Enabled = false
	if err := New(disabled, &fakeAdapter{}, logx.Nop(), nil).Notify(ctx, Message{Text: "x"}); err != ErrDisabled {
		t.Fatalf("disabled: err = %v", err)
	}
	if err := New(testConfig(), nil, logx.Nop(), nil).Notify(ctx, Message{Text: "x"}); err != ErrDisabled {
		t.Fatalf("nil adapter: err = %v", err)
	}
	if err := New(testConfig(), &fakeAdapter{}, logx.Nop(), nil).Notify(ctx, Message{Text: "x"}); err != ErrStopped {
		t.Fatalf("not started: err = %v", err)
	}

	noDefault := testConfig()
	noDefault.DefaultTarget = transport.ChatTarget{}
	s := New(noDefault, &fakeAdapter{}, logx.Nop(), nil)
	s.Start(ctx)
	defer s.Stop(ctx)
	if err := s.Notify(ctx, Message{Text: "x"}); err != ErrNoTarget {
		t.Fatalf("no default: err = %v", err)
	}
}

func TestStopThenNotify(t *testing.T) {
	ctx := context.Background()
	s := New(testConfig(), &fakeAdapter{}, logx.Nop(), nil)
	s.Start(ctx)
	s.Stop(ctx)
	if err := s.Notify(ctx, Message{Text: "x"}); err != ErrStopped {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	// restart is allowed
	s.Start(ctx)
	defer s.Stop(ctx)
	if err := s.Notify(ctx, Message{Text: "x"}); err != nil {
		t.Fatalf("after restart: %v", err)
	}
}

func TestRetryDelayBounded(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt < 10; attempt++ {
		if d := retryDelay(cfg, attempt); d < 0 || d > time.Second {
			t.Fatalf("retryDelay(%d) = %v", attempt, d)
		}
	}
}
