package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lightup/internal/alarm"
	"lightup/internal/eventbus"
	"lightup/internal/storage"
	"lightup/internal/task/runner"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int
	sent  []string
	block chan struct{}
}

func (f *fakeSender) SendText(ctx context.Context, text string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("telegram down")
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func fastConfig() Config {
	return Config{
		Enabled:       true,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		DedupWindow:   time.Minute,
	}
}

func startService(t *testing.T, cfg Config, sender Sender, opts ...Option) *Service {
	t.Helper()
	s := New(cfg, sender, opts...)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNotifyRetriesThenSends(t *testing.T) {
	snd := &fakeSender{fails: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, EventSent)
	defer unsub()

	s := startService(t, fastConfig(), snd, WithBus(bus))
	if err := s.Notify(context.Background(), Notification{Kind: KindAlarm, AlarmID: 4, Text: "wake up"}); err != nil {
		t.Fatalf("Notify = %v", err)
	}
	waitUntil(t, func() bool { return len(snd.texts()) == 1 })
	if got := snd.texts()[0]; got != "⏰ wake up" {
		t.Fatalf("sent %q", got)
	}

	ev := <-events
	if ev.AlarmID != 4 || ev.Data.(EventData).Attempts != 3 {
		t.Fatalf("sent event = %+v", ev)
	}
	if h := s.History(); len(h) != 1 || h[0].Error != "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyGivesUpAfterRetries(t *testing.T) {
	snd := &fakeSender{fails: 10}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, EventFailed)
	defer unsub()

	s := startService(t, fastConfig(), snd, WithBus(bus))
	if err := s.Notify(context.Background(), Notification{Kind: KindSystem, Text: "x"}); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Data.(EventData).Attempts != 3 {
			t.Fatalf("attempts = %d, want 3", ev.Data.(EventData).Attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failed event")
	}
	snd.mu.Lock()
	left := snd.fails
	snd.mu.Unlock()
	if left != 7 {
		t.Fatalf("send attempts = %d, want 3", 10-left)
	}
}

func TestNotifyDedupsSameFiring(t *testing.T) {
	snd := &fakeSender{}
	store := storage.NewMemory()
	s := startService(t, fastConfig(), snd, WithDedupStore(store))

	n := Notification{Kind: KindAlarm, AlarmID: 1, FiringID: "f-1", Text: "ring"}
	for range 3 {
		if err := s.Notify(context.Background(), n); err != nil {
			t.Fatal(err)
		}
	}
	waitUntil(t, func() bool { return len(snd.texts()) == 1 })

	// A fresh service sharing the store still suppresses it.
	snd2 := &fakeSender{}
	s2 := startService(t, fastConfig(), snd2, WithDedupStore(store))
	if err := s2.Notify(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	n.FiringID = "f-2"
	if err := s2.Notify(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, func() bool { return len(snd2.texts()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := len(snd2.texts()); got != 1 {
		t.Fatalf("second service sent %d, want 1", got)
	}
}

func TestNotifyQueueFull(t *testing.T) {
	snd := &fakeSender{block: make(chan struct{})}
	cfg := fastConfig()
	cfg.QueueSize = 1
	cfg.DedupWindow = 0
	s := startService(t, cfg, snd)
	defer close(snd.block)

	var full bool
	for range 5 {
		if err := s.Notify(context.Background(), Notification{Kind: KindSystem, Text: "x"}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("queue never reported full")
	}
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	s := New(Config{}, &fakeSender{})
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled Notify = %v", err)
	}

	s2 := New(fastConfig(), &fakeSender{})
	if err := s2.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started Notify = %v", err)
	}
	s2.Start(context.Background())
	s2.Stop(context.Background())
	if err := s2.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("stopped Notify = %v", err)
	}
}

func TestFromFiring(t *testing.T) {
	a := alarm.MustNew(7, 30, alarm.Weekdays, true, alarm.WithID(3), alarm.WithLabel("Work"))
	at := time.Date(2024, 1, 1, 7, 15, 0, 0, time.UTC)

	n := FromFiring(runner.Firing{ID: "id-1", Kind: runner.KindOffset, Alarm: a, Offset: -15, At: at})
	if n.Kind != KindPrealert || n.AlarmID != 3 || n.FiringID != "id-1" {
		t.Fatalf("notification = %+v", n)
	}
	if want := "🔔 Alarm 3 (Work) rings in 15 min at 07:30"; Render(n) != want {
		t.Fatalf("Render = %q, want %q", Render(n), want)
	}

	n = FromFiring(runner.Firing{ID: "id-2", Kind: runner.KindPrimary, Alarm: a, At: at})
	if want := "⏰ Alarm 3 (Work) is ringing: 07:30"; Render(n) != want {
		t.Fatalf("Render = %q, want %q", Render(n), want)
	}

	n = FromFiring(runner.Firing{ID: "id-3", Kind: runner.KindOffset, Alarm: a, Offset: 5, At: at})
	if n.Kind != KindPostalert {
		t.Fatalf("kind = %q, want postalert", n.Kind)
	}
}

func TestBreakerOpensAndBacksOff(t *testing.T) {
	cfg := Config{BreakerTrip: 2, BreakerBase: time.Second, BreakerMaxDelay: 3 * time.Second, BreakerResetAfter: time.Minute}
	var b breaker
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	fail := errors.New("down")

	b.record(now, cfg, fail)
	if open, _ := b.isOpen(now, cfg); open {
		t.Fatal("open after one failure")
	}
	b.record(now, cfg, fail)
	open, until := b.isOpen(now, cfg)
	if !open || !until.Equal(now.Add(time.Second)) {
		t.Fatalf("isOpen = %v until %v, want 1s cooldown", open, until)
	}
	b.record(now, cfg, fail)
	b.record(now, cfg, fail)
	if _, until := b.isOpen(now, cfg); !until.Equal(now.Add(3 * time.Second)) {
		t.Fatalf("cooldown not capped: until %v", until)
	}
	if open, _ := b.isOpen(now.Add(2*time.Minute), cfg); open {
		t.Fatal("still open after reset window")
	}

	b.record(now, cfg, fail)
	b.record(now, cfg, nil)
	if open, _ := b.isOpen(now, cfg); open {
		t.Fatal("success did not close the circuit")
	}

	off := Config{BreakerTrip: -1}
	for range 10 {
		b.record(now, off, fail)
	}
	if open, _ := b.isOpen(now, off); open {
		t.Fatal("disabled breaker opened")
	}
}

func TestNotifySkipsWhileCircuitOpen(t *testing.T) {
	snd := &fakeSender{fails: 100}
	cfg := fastConfig()
	cfg.RetryMax = 0
	cfg.DedupWindow = 0
	cfg.BreakerTrip = 1
	cfg.BreakerBase = time.Hour
	s := startService(t, cfg, snd)

	for range 3 {
		if err := s.Notify(context.Background(), Notification{Kind: KindSystem, Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	waitUntil(t, func() bool { return len(s.History()) == 3 })
	snd.mu.Lock()
	tried := 100 - snd.fails
	snd.mu.Unlock()
	if tried != 1 {
		t.Fatalf("send attempts = %d, want 1", tried)
	}
	h := s.History()
	if h[len(h)-1].Error != ErrCircuitOpen.Error() {
		t.Fatalf("last history = %+v", h[len(h)-1])
	}
}
