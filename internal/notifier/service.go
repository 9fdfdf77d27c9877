package notifier

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lightup/internal/eventbus"
	rtsup "lightup/internal/runtime/supervisor"
	logx "lightup/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historySize = 300

type job struct {
	n   Notification
	key string
}

// Service is the async notification pipeline. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus
	store  DedupStore

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan job
	sup       *rtsup.Supervisor
	stopDone  chan struct{}

	dedup   dedupTable
	circuit breaker

	hmu     sync.Mutex
	history []HistoryItem
}

type Option func(*Service)

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }
func WithBus(b eventbus.Bus) Option      { return func(s *Service) { s.bus = b } }

// WithDedupStore persists dedup windows. Nil keeps them in memory only.
func WithDedupStore(st DedupStore) Option { return func(s *Service) { s.store = st } }

func New(cfg Config, sender Sender, opts ...Option) *Service {
	s := &Service{sender: sender, bus: eventbus.Nop{}}
	for _, o := range opts {
		o(s)
	}
	if s.bus == nil {
		s.bus = eventbus.Nop{}
	}
	s.log = s.log.With(logx.String("comp", "notifier"))
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// SetSender swaps the delivery target; in-flight sends finish on the old one.
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Apply updates rate, retry and dedup settings. Workers and queue size
// take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	cfg.RetryMax = max(cfg.RetryMax, 0)
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	cfg.DedupWindow = max(cfg.DedupWindow, 0)
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// Burst equals the rate so a prealert and its alarm can go out together.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the workers. It is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup, q, workers := s.sup, s.queue, s.cfg.Workers
	s.mu.Unlock()

	for i := range workers {
		sup.GoRestart("notifier.worker."+strconv.Itoa(i), func(c context.Context) error {
			s.workerLoop(c, q)
			if c.Err() != nil || s.stopping() {
				return context.Canceled
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

func (s *Service) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopDone != nil
}

// Supervisor exposes worker stats for the health endpoint. Nil when stopped.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Stop refuses new notifications and drains the queue until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Notify calls may still be sending on q.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue, s.sup, s.stopDone = nil, nil, nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Notify enqueues n. It returns nil for suppressed duplicates.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q, window, maxEntries, st := s.queue, s.cfg.DedupWindow, s.cfg.DedupMaxEntries, s.store
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(n)
	if window > 0 && !s.dedup.allow(ctx, key, n.At, window, maxEntries, st) {
		s.publish(EventDeduped, n, key, 0, nil)
		return nil
	}

	select {
	case q <- job{n: n, key: key}:
		s.publish(EventQueued, n, key, 0, nil)
		return nil
	default:
		s.publish(EventDropped, n, key, 0, ErrQueueFull)
		s.log.Warn("notification dropped", logx.Int64("alarm_id", n.AlarmID), logx.Err(ErrQueueFull))
		return ErrQueueFull
	}
}

func (s *Service) publish(typ string, n Notification, key string, attempts int, err error) {
	d := EventData{Kind: n.Kind, FiringID: n.FiringID, Key: key, At: time.Now(), Attempts: attempts}
	if err != nil {
		d.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: d.At, AlarmID: n.AlarmID, Data: d})
}

// History returns the most recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(n Notification, text string, err error) {
	it := HistoryItem{At: time.Now(), Kind: n.Kind, AlarmID: n.AlarmID, FiringID: n.FiringID, Text: text}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}
