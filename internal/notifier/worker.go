package notifier

import (
	"context"
	"math/rand/v2"
	"time"

	logx "lightup/pkg/logx"
)

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()

	text := Render(j.n)
	if sender == nil || text == "" {
		return
	}

	if open, until := s.circuit.isOpen(time.Now(), cfg); open {
		s.appendHistory(j.n, text, ErrCircuitOpen)
		s.publish(EventFailed, j.n, j.key, 0, ErrCircuitOpen)
		s.log.Debug("notification skipped, circuit open",
			logx.Int64("alarm_id", j.n.AlarmID),
			logx.Time("until", until),
		)
		return
	}

	attempts := 1 + cfg.RetryMax
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if werr := lim.Wait(ctx); werr != nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err = sender.SendText(sctx, text)
		cancel()
		if err == nil {
			s.circuit.record(time.Now(), cfg, nil)
			s.appendHistory(j.n, text, nil)
			s.publish(EventSent, j.n, j.key, attempt, nil)
			return
		}
		s.log.Debug("notification send failed",
			logx.Int64("alarm_id", j.n.AlarmID),
			logx.Int("attempt", attempt),
			logx.Int("max", attempts),
			logx.Err(err),
		)
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	s.circuit.record(time.Now(), cfg, err)
	s.appendHistory(j.n, text, err)
	s.publish(EventFailed, j.n, j.key, attempts, err)
	s.log.Warn("notification failed",
		logx.Int64("alarm_id", j.n.AlarmID),
		logx.String("firing_id", j.n.FiringID),
		logx.Int("attempts", attempts),
		logx.Err(err),
	)
}

// retryDelay is base*2^(attempt-1) with 0.7..1.3 jitter, capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, cfg.RetryMaxDelay)) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
