package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishFiltersByType(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	fired, unsubFired := b.Subscribe(4, Fired)
	defer unsubFired()

	b.Publish(Event{Type: TaskStarted, AlarmID: 1})
	b.Publish(Event{Type: Fired, AlarmID: 1})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(fired); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	e := <-fired
	if e.Type != Fired || e.AlarmID != 1 || e.Time.IsZero() {
		t.Fatalf("event = %+v, want stamped %s for alarm 1", e, Fired)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: Drift})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber")
	}
	if got := b.Dropped(); got != 9 {
		t.Fatalf("Dropped() = %d, want 9", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	b.Publish(Event{Type: Fired})
}

func TestPublishDuringUnsubscribe(t *testing.T) {
	b := New()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					b.Publish(Event{Type: Fired})
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		ch, unsub := b.Subscribe(1)
		unsub()
		// Drain whatever landed before the close; the range must end.
		for range ch {
		}
	}
	close(stop)
	wg.Wait()

	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	if n != 0 {
		t.Fatalf("%d subscribers left after unsubscribe", n)
	}
}

func TestNopBus(t *testing.T) {
	var b Bus = Nop{}
	b.Publish(Event{Type: Fired})
	ch, unsub := b.Subscribe(1)
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("Nop subscription delivered an event")
	}
}
