// Package eventbus fans alarm lifecycle events out to in-process
// subscribers (notifier, HTTP history, logs).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the scheduler.
const (
	TaskStarted = "alarm.task.started"
	TaskStopped = "alarm.task.stopped"
	Fired       = "alarm.fired"
	Prealert    = "alarm.prealert"
	Postalert   = "alarm.postalert"
	Reconciled  = "alarm.reconciled"
	Drift       = "alarm.drift"
)

// Event is a small in-memory signal.
//
// Publish never blocks: a subscriber whose buffer is full misses the event
// and the bus counts the drop.
type Event struct {
	Type    string
	Time    time.Time
	AlarmID int64
	Data    any
}

type Bus interface {
	Publish(e Event)
	// Subscribe registers a buffered subscriber. With types set, only those
	// event types are delivered.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int, ...string) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() *MemBus {
	return &MemBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch    chan Event
	types map[string]struct{}
	// closed is guarded by MemBus.mu.
	closed bool
}

func (s *sub) wants(t string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type MemBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*sub
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Unsubscribe closes channels only under the write lock.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.closed || !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *MemBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			s.closed = true
			delete(b.subs, id)
			close(s.ch)
		})
	}
	return s.ch, unsub
}

// Dropped counts deliveries lost to full subscriber buffers.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }
