package app

import (
	"context"
	"sync"
	"time"

	"test-session-service/internal/domain"
)

const (
	// DefaultIdleThreshold pauses active time after this long without input.
	DefaultIdleThreshold = 30 * time.Second
	// DefaultIdleCheck is the granularity of the recurring idle check.
	DefaultIdleCheck = time.Second
)

// TimerOptions configures an ActivityTimer. A zero StartedAt starts a new
// attempt at the current time; ActiveTime resumes a restored total.
type TimerOptions struct {
	StartedAt  time.Time
	ActiveTime time.Duration
	Idle       time.Duration
	Tick       time.Duration
	Now        func() time.Time
}

// TimerSnapshot is the timing state reported to persistence and submission.
type TimerSnapshot struct {
	StartedAt    time.Time `json:"startedAt"`
	WallTimeMs   int64     `json:"wallTimeMs"`
	ActiveTimeMs int64     `json:"activeTimeMs"`
}

// ActivityTimer measures wall time since the first access and active time:
// time spent visible with an input signal inside the idle threshold.
//
// It is an explicit resource: Start acquires the recurring idle check and Stop
// releases it, flushing any running interval exactly once.
type ActivityTimer struct {
	now  func() time.Time
	idle time.Duration
	tick time.Duration

	mu           sync.Mutex
	startedAt    time.Time
	accumulated  time.Duration
	running      bool
	runStart     time.Time
	lastActivity time.Time
	visible      bool
	started      bool
	stopped      bool
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewActivityTimer(opts TimerOptions) *ActivityTimer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	idle := opts.Idle
	if idle <= 0 {
		idle = DefaultIdleThreshold
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = now()
	}
	active := opts.ActiveTime
	if active < 0 {
		active = 0
	}
	return &ActivityTimer{
		now:          now,
		idle:         idle,
		tick:         opts.Tick,
		startedAt:    startedAt,
		accumulated:  active,
		lastActivity: now(),
	}
}

// Start marks the document visible, begins accumulating and launches the idle
// check. A non-positive Tick leaves idle checks to explicit Tick calls.
func (t *ActivityTimer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return domain.ErrTimerStarted
	}
	t.started = true
	now := t.now()
	t.visible = true
	t.lastActivity = now
	t.resumeLocked(now)

	if t.tick <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.tick, t.done)
	return nil
}

func (t *ActivityTimer) loop(ctx context.Context, every time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// MarkActivity records an input signal (pointer, key, scroll, touch).
func (t *ActivityTimer) MarkActivity() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.lastActivity = now
	if t.visible && t.live() {
		t.resumeLocked(now)
	}
}

// SetVisible pauses accumulation when hidden; becoming visible counts as activity.
func (t *ActivityTimer) SetVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !visible {
		t.pauseLocked(now)
		t.visible = false
		return
	}
	t.visible = true
	t.lastActivity = now
	if t.live() {
		t.resumeLocked(now)
	}
}

// Tick evaluates the idle threshold. It only acts while visible.
func (t *ActivityTimer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.visible || !t.running {
		return
	}
	if t.now().Sub(t.lastActivity) > t.idle {
		// Credit active time only up to the moment the user went idle.
		t.pauseLocked(t.lastActivity.Add(t.idle))
	}
}

// Snapshot reports the current timing without changing state.
func (t *ActivityTimer) Snapshot() TimerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(t.now())
}

// Stop flushes the running interval, stops the idle check and waits for it to
// exit. It is safe to call more than once.
func (t *ActivityTimer) Stop() TimerSnapshot {
	t.mu.Lock()
	now := t.now()
	if t.stopped {
		snap := t.snapshotLocked(now)
		t.mu.Unlock()
		return snap
	}
	t.stopped = true
	t.pauseLocked(t.creditEndLocked(now))
	cancel, done := t.cancel, t.done
	snap := t.snapshotLocked(now)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return snap
}

func (t *ActivityTimer) live() bool {
	return t.started && !t.stopped
}

func (t *ActivityTimer) resumeLocked(now time.Time) {
	if t.running {
		return
	}
	t.running = true
	t.runStart = now
}

func (t *ActivityTimer) pauseLocked(at time.Time) {
	if !t.running {
		return
	}
	if at.After(t.runStart) {
		t.accumulated += at.Sub(t.runStart)
	}
	t.running = false
}

// creditEndLocked is the latest instant a running interval may count up to:
// now, or the moment the idle threshold passed if no tick has paused yet.
func (t *ActivityTimer) creditEndLocked(now time.Time) time.Time {
	if limit := t.lastActivity.Add(t.idle); now.After(limit) {
		return limit
	}
	return now
}

func (t *ActivityTimer) snapshotLocked(now time.Time) TimerSnapshot {
	wall := now.Sub(t.startedAt)
	if wall < 0 {
		wall = 0
	}
	active := t.accumulated
	if end := t.creditEndLocked(now); t.running && end.After(t.runStart) {
		active += end.Sub(t.runStart)
	}
	if active > wall {
		active = wall
	}
	return TimerSnapshot{
		StartedAt:    t.startedAt,
		WallTimeMs:   wall.Milliseconds(),
		ActiveTimeMs: active.Milliseconds(),
	}
}
