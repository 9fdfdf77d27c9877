package notifier

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen marks notifications skipped while the sender is failing.
var ErrCircuitOpen = errors.New("notifier circuit open")

// breaker opens after trip consecutive failed deliveries and stays open for
// a cooldown that doubles with every further failure, up to maxDelay.
// A long enough quiet period closes it again.
type breaker struct {
	mu          sync.Mutex
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

type breakerCfg struct {
	trip       int
	baseDelay  time.Duration
	maxDelay   time.Duration
	resetAfter time.Duration
}

func (c Config) breaker() (breakerCfg, bool) {
	if c.BreakerTrip < 0 {
		return breakerCfg{}, false
	}
	bc := breakerCfg{
		trip:       c.BreakerTrip,
		baseDelay:  c.BreakerBase,
		maxDelay:   c.BreakerMaxDelay,
		resetAfter: c.BreakerResetAfter,
	}
	if bc.trip == 0 {
		bc.trip = 5
	}
	if bc.baseDelay <= 0 {
		bc.baseDelay = 5 * time.Second
	}
	if bc.maxDelay <= 0 {
		bc.maxDelay = 2 * time.Minute
	}
	if bc.resetAfter <= 0 {
		bc.resetAfter = 5 * time.Minute
	}
	return bc, true
}

// isOpen reports whether deliveries should be skipped at now.
func (b *breaker) isOpen(now time.Time, cfg Config) (bool, time.Time) {
	bc, ok := cfg.breaker()
	if !ok {
		return false, time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(now, bc)
	if !b.openUntil.IsZero() && now.Before(b.openUntil) {
		return true, b.openUntil
	}
	return false, time.Time{}
}

// record feeds the final outcome of one delivery.
func (b *breaker) record(now time.Time, cfg Config, err error) {
	bc, ok := cfg.breaker()
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(now, bc)

	if err == nil {
		b.fails = 0
		b.openUntil = time.Time{}
		b.lastFailure = time.Time{}
		return
	}
	b.fails++
	b.lastFailure = now
	if b.fails < bc.trip {
		return
	}
	d := bc.baseDelay
	for i := 0; i < b.fails-bc.trip && d < bc.maxDelay; i++ {
		d *= 2
	}
	b.openUntil = now.Add(min(d, bc.maxDelay))
}

func (b *breaker) expireLocked(now time.Time, bc breakerCfg) {
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > bc.resetAfter {
		b.fails = 0
		b.openUntil = time.Time{}
	}
}
