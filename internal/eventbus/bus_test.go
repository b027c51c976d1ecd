package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypePluginAction, Data: ActionData{Action: "shout"}})

	for i, ch := range []<-chan Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Type != TypePluginAction {
				t.Fatalf("sub %d: type = %q", i, ev.Type)
			}
			if ev.Time.IsZero() {
				t.Fatalf("sub %d: time not stamped", i)
			}
			if d, ok := ev.Data.(ActionData); !ok || d.Action != "shout" {
				t.Fatalf("sub %d: data = %#v", i, ev.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no event", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"}) // dropped, must not block

	if ev := <-ch; ev.Type != "one" {
		t.Fatalf("type = %q, want one", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q", ev.Type)
	default:
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	b.Publish(Event{Type: "after"}) // must not panic
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	b := New()
	for i := 0; i < 200; i++ {
		_, unsub := b.Subscribe(1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 10; j++ {
				b.Publish(Event{Type: TypeShoutRun})
			}
		}()
		unsub()
		<-done
	}
}
