package runner

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lightup/internal/alarm"
	logx "lightup/pkg/logx"
)

// DefaultInterval is how often a task reads the clock.
const DefaultInterval = time.Second

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Kind int

const (
	KindPrimary Kind = iota
	KindOffset
)

func (k Kind) String() string {
	if k == KindOffset {
		return "offset"
	}
	return "primary"
}

// Firing describes one alert handed to a callback.
type Firing struct {
	ID   string
	Kind Kind
	// Alarm is a snapshot of the primary alarm, also for offset firings.
	Alarm *alarm.Alarm
	// Offset is the shift in minutes for offset firings, 0 otherwise.
	Offset int
	At     time.Time
}

// AlertFunc is invoked on a schedule match. Errors are logged, not retried.
type AlertFunc func(ctx context.Context, f Firing) error

// Spawner starts named background goroutines. *supervisor.Supervisor
// satisfies it.
type Spawner interface {
	Go0(name string, fn func(ctx context.Context))
}

type Option func(*Task)

// WithOffset adds a second alert fired minutes after (or before, when
// negative) the primary one. A zero offset disables it.
func WithOffset(minutes int, fn AlertFunc) Option {
	return func(t *Task) {
		t.offMinutes = minutes
		t.offAlert = fn
	}
}

func WithGuard(g *Guard) Option { return func(t *Task) { t.guard = g } }

func WithClock(c Clock) Option { return func(t *Task) { t.clock = c } }

func WithInterval(d time.Duration) Option { return func(t *Task) { t.interval = d } }

func WithLogger(log logx.Logger) Option { return func(t *Task) { t.log = log } }

func WithSpawner(s Spawner) Option { return func(t *Task) { t.spawn = s } }

// Task polls the clock for one alarm.
type Task struct {
	id  int64
	rec atomic.Pointer[alarm.Alarm]

	alert AlertFunc

	// offset state; offSource is the primary snapshot offAlarm was derived from.
	offMu      sync.Mutex
	offMinutes int
	offAlert   AlertFunc
	offSource  *alarm.Alarm
	offAlarm   *alarm.Alarm

	guard    *Guard
	clock    Clock
	interval time.Duration
	log      logx.Logger
	spawn    Spawner

	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	// loop-owned
	lastPrimary time.Time
	lastOffset  time.Time

	fired atomic.Uint64
}

// New binds a task to a snapshot of a. The alarm must have an id.
func New(a *alarm.Alarm, alert AlertFunc, opts ...Option) (*Task, error) {
	if a == nil {
		return nil, alarm.Errorf(alarm.ErrInvalid, "task needs an alarm")
	}
	if !a.HasID() {
		return nil, alarm.Errorf(alarm.ErrInvalid, "task needs a persisted alarm")
	}
	t := &Task{
		id:       a.ID(),
		alert:    alert,
		clock:    SystemClock{},
		interval: DefaultInterval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	if t.interval <= 0 {
		t.interval = DefaultInterval
	}
	if t.clock == nil {
		t.clock = SystemClock{}
	}
	if t.log.IsZero() {
		t.log = logx.Nop()
	}
	t.log = t.log.With(logx.Int64("alarm_id", t.id))

	snap := a.Clone()
	t.rec.Store(snap)
	if t.offAlert != nil && t.offMinutes != 0 {
		if _, err := snap.Offset(t.offMinutes); err != nil {
			return nil, err
		}
	}
	t.syncOffset(snap)
	return t, nil
}

// ID returns the bound alarm id. It stays valid after the task stopped.
func (t *Task) ID() int64 { return t.id }

// Alarm returns a copy of the bound alarm.
func (t *Task) Alarm() *alarm.Alarm { return t.rec.Load().Clone() }

// OffsetAlarm returns a copy of the derived offset alarm, or nil.
func (t *Task) OffsetAlarm() *alarm.Alarm {
	t.offMu.Lock()
	defer t.offMu.Unlock()
	return t.offAlarm.Clone()
}

func (t *Task) State() State { return State(t.state.Load()) }

// IsAlive reports whether the polling goroutine has not exited yet.
func (t *Task) IsAlive() bool {
	s := t.State()
	return s == StateRunning || s == StateStopping
}

// Fired counts completed callback invocations, primary and offset.
func (t *Task) Fired() uint64 { return t.fired.Load() }

// Done is closed once the task reached Stopped.
func (t *Task) Done() <-chan struct{} { return t.done }

// Start spawns the polling loop. An inactive alarm is refused and the task
// goes straight to Stopped without ever spawning.
func (t *Task) Start(ctx context.Context) error {
	rec := t.rec.Load()
	if !rec.IsActive() {
		if t.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
			close(t.done)
		}
		return alarm.Errorf(alarm.ErrInvalid, "alarm %d is not active", t.id)
	}
	if !t.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return alarm.Errorf(alarm.ErrInternal, "task for alarm %d already %s", t.id, t.State())
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancelMu.Lock()
	t.cancel = cancel
	t.cancelMu.Unlock()

	if t.spawn == nil {
		go t.run(runCtx)
	} else {
		// The loop watches runCtx and ends early if the spawner's own
		// context is cancelled first.
		t.spawn.Go0("alarm."+strconv.FormatInt(t.id, 10), func(sctx context.Context) {
			loopCtx, stop := context.WithCancel(runCtx)
			defer stop()
			release := context.AfterFunc(sctx, stop)
			defer release()
			t.run(loopCtx)
		})
		go func() {
			select {
			case <-runCtx.Done():
				t.Stop()
			case <-t.done:
			}
		}()
	}
	t.log.Debug("task started", logx.String("cron", cronOf(rec)))
	return nil
}

// Stop requests the loop to exit and returns immediately. It is idempotent.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		if t.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
			close(t.done)
		} else {
			t.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		}
		close(t.stopCh)
		t.cancelMu.Lock()
		if t.cancel != nil {
			t.cancel()
		}
		t.cancelMu.Unlock()
	})
}

// Wait blocks until the task stopped or ctx is done. A missed deadline is
// reported as a timeout error; the task may still be alive afterwards.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return alarm.Wrap(alarm.ErrTimeout, ctx.Err(), "task for alarm %d still alive", t.id)
	}
}

// Edit swaps the bound alarm for a snapshot of a. The id must match.
func (t *Task) Edit(a *alarm.Alarm) error {
	if a == nil {
		return alarm.Errorf(alarm.ErrInvalid, "edit with nil alarm")
	}
	if a.ID() != t.id {
		return alarm.Errorf(alarm.ErrIdentity, "task for alarm %d cannot take alarm %d", t.id, a.ID())
	}
	snap := a.Clone()
	t.rec.Store(snap)
	t.syncOffset(snap)
	return nil
}

// SetOffset changes the offset and re-derives the offset alarm. It has no
// effect on tasks built without an offset callback.
func (t *Task) SetOffset(minutes int) error {
	rec := t.rec.Load()
	if minutes != 0 {
		if _, err := rec.Offset(minutes); err != nil {
			return err
		}
	}
	t.offMu.Lock()
	t.offMinutes = minutes
	t.offSource = nil
	t.offMu.Unlock()
	t.syncOffset(rec)
	return nil
}

// syncOffset re-derives the offset alarm only when a schedule field of the
// primary alarm changed.
func (t *Task) syncOffset(rec *alarm.Alarm) *alarm.Alarm {
	t.offMu.Lock()
	defer t.offMu.Unlock()
	if t.offAlert == nil || t.offMinutes == 0 {
		t.offAlarm = nil
		return nil
	}
	if t.offSource != nil && t.offSource.SameSchedule(rec) {
		return t.offAlarm
	}
	off, err := rec.Offset(t.offMinutes)
	if err != nil {
		t.log.Warn("offset alarm not derived", logx.Int("offset", t.offMinutes), logx.Err(err))
		off = nil
	}
	t.offSource = rec
	t.offAlarm = off
	return off
}

func (t *Task) run(ctx context.Context) {
	defer func() {
		t.state.Store(int32(StateStopped))
		close(t.done)
		t.log.Debug("task stopped", logx.Uint64("fired", t.fired.Load()))
	}()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
		}
		t.poll(ctx)
	}
}

func (t *Task) poll(ctx context.Context) {
	rec := t.rec.Load()
	if !rec.IsActive() {
		return
	}
	now := t.clock.Now()
	minute := now.Truncate(time.Minute)

	if rec.Matches(now) && !minute.Equal(t.lastPrimary) {
		t.lastPrimary = minute
		t.fire(ctx, Firing{Kind: KindPrimary, Alarm: rec.Clone(), At: now}, t.alert)
	}

	off := t.syncOffset(rec)
	if off != nil && off.Matches(now) && !minute.Equal(t.lastOffset) {
		t.lastOffset = minute
		t.offMu.Lock()
		shift := t.offMinutes
		t.offMu.Unlock()
		t.fire(ctx, Firing{Kind: KindOffset, Alarm: rec.Clone(), Offset: shift, At: now}, t.offAlert)
	}
}

func (t *Task) fire(ctx context.Context, f Firing, fn AlertFunc) {
	if fn == nil {
		return
	}
	select {
	case <-t.stopCh:
		return
	default:
	}
	f.ID = uuid.NewString()
	log := t.log.With(logx.String("firing_id", f.ID), logx.String("kind", f.Kind.String()))

	start := time.Now()
	err := t.guard.Run(ctx, func(c context.Context) error {
		// Stop may have been requested while waiting for the guard.
		select {
		case <-t.stopCh:
			return errStoppedWaiting
		default:
		}
		return fn(c, f)
	})
	took := time.Since(start)

	var pe *PanicError
	switch {
	case err == nil:
		t.fired.Add(1)
		log.Info("alarm fired", logx.Duration("took", took))
	case errors.As(err, &pe):
		t.fired.Add(1)
		log.Error("alert callback panicked", logx.Any("panic", pe.Value), logx.Stack(pe.Stack))
	case errors.Is(err, context.Canceled), errors.Is(err, errStoppedWaiting):
		log.Debug("alert abandoned while waiting for guard")
	default:
		t.fired.Add(1)
		log.Error("alert callback failed", logx.Err(err), logx.Duration("took", took))
	}
}

var errStoppedWaiting = errors.New("task stopped while waiting for guard")

func cronOf(a *alarm.Alarm) string {
	s, err := a.CronSpec()
	if err != nil {
		return ""
	}
	return s
}
