package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"test-session-service/internal/domain"
)

func newTestTimer(clock *fakeClock, opts TimerOptions) *ActivityTimer {
	opts.Now = clock.Now
	return NewActivityTimer(opts)
}

func TestTimerAccumulatesWhileActive(t *testing.T) {
	clock := newFakeClock()
	timer := newTestTimer(clock, TimerOptions{})
	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(10 * time.Second)
	timer.MarkActivity()
	clock.Advance(5 * time.Second)

	snap := timer.Snapshot()
	if snap.WallTimeMs != 15000 || snap.ActiveTimeMs != 15000 {
		t.Fatalf("expected 15s wall and active, got %+v", snap)
	}
}

func TestTimerIdleCreditsUpToThreshold(t *testing.T) {
	clock := newFakeClock()
	timer := newTestTimer(clock, TimerOptions{Idle: 30 * time.Second})
	_ = timer.Start(context.Background())

	clock.Advance(45 * time.Second)
	timer.Tick()
	if snap := timer.Snapshot(); snap.ActiveTimeMs != 30000 || snap.WallTimeMs != 45000 {
		t.Fatalf("expected active capped at idle threshold, got %+v", snap)
	}

	clock.Advance(15 * time.Second)
	if snap := timer.Snapshot(); snap.ActiveTimeMs != 30000 {
		t.Fatalf("expected no accumulation while idle, got %+v", snap)
	}

	timer.MarkActivity()
	clock.Advance(5 * time.Second)
	if snap := timer.Snapshot(); snap.ActiveTimeMs != 35000 {
		t.Fatalf("expected activity to resume accumulation, got %+v", snap)
	}
}

func TestTimerPausesWhileHidden(t *testing.T) {
	clock := newFakeClock()
	timer := newTestTimer(clock, TimerOptions{})
	_ = timer.Start(context.Background())

	clock.Advance(5 * time.Second)
	timer.SetVisible(false)
	clock.Advance(20 * time.Second)
	timer.MarkActivity()
	clock.Advance(time.Second)
	timer.Tick()
	if snap := timer.Snapshot(); snap.ActiveTimeMs != 5000 {
		t.Fatalf("expected hidden time excluded, got %+v", snap)
	}

	timer.SetVisible(true)
	clock.Advance(3 * time.Second)
	if snap := timer.Snapshot(); snap.ActiveTimeMs != 8000 {
		t.Fatalf("expected visibility to resume accumulation, got %+v", snap)
	}
}

func TestTimerResumesRestoredTotals(t *testing.T) {
	clock := newFakeClock()
	startedAt := clock.Now().Add(-time.Minute)
	timer := newTestTimer(clock, TimerOptions{StartedAt: startedAt, ActiveTime: 20 * time.Second})
	_ = timer.Start(context.Background())
	clock.Advance(10 * time.Second)

	snap := timer.Snapshot()
	if !snap.StartedAt.Equal(startedAt) || snap.WallTimeMs != 70000 || snap.ActiveTimeMs != 30000 {
		t.Fatalf("unexpected restored snapshot %+v", snap)
	}
}

func TestTimerClampsActiveToWall(t *testing.T) {
	clock := newFakeClock()
	timer := newTestTimer(clock, TimerOptions{ActiveTime: 5 * time.Minute})
	if snap := timer.Snapshot(); snap.ActiveTimeMs != 0 || snap.WallTimeMs != 0 {
		t.Fatalf("expected active clamped to wall, got %+v", snap)
	}

	future := newTestTimer(clock, TimerOptions{StartedAt: clock.Now().Add(time.Hour)})
	if snap := future.Snapshot(); snap.WallTimeMs != 0 {
		t.Fatalf("expected non-negative wall time, got %+v", snap)
	}
}

func TestTimerStartTwice(t *testing.T) {
	timer := newTestTimer(newFakeClock(), TimerOptions{})
	_ = timer.Start(context.Background())
	if err := timer.Start(context.Background()); !errors.Is(err, domain.ErrTimerStarted) {
		t.Fatalf("expected ErrTimerStarted, got %v", err)
	}
}

func TestTimerStopIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	timer := newTestTimer(clock, TimerOptions{Tick: time.Millisecond})
	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(4 * time.Second)

	first := timer.Stop()
	clock.Advance(time.Minute)
	timer.MarkActivity()
	second := timer.Stop()

	if first.ActiveTimeMs != 4000 || second.ActiveTimeMs != 4000 {
		t.Fatalf("expected active frozen at 4s, got %d then %d", first.ActiveTimeMs, second.ActiveTimeMs)
	}
	if second.WallTimeMs <= first.WallTimeMs {
		t.Fatalf("expected wall time to keep growing, got %d then %d", first.WallTimeMs, second.WallTimeMs)
	}
}

func TestTimerCapsIdleBeforeTick(t *testing.T) {
	clock := newFakeClock()
	timer := newTestTimer(clock, TimerOptions{Idle: 30 * time.Second})
	_ = timer.Start(context.Background())

	clock.Advance(31 * time.Second)
	if snap := timer.Snapshot(); snap.ActiveTimeMs != 30000 || snap.WallTimeMs != 31000 {
		t.Fatalf("expected snapshot capped at idle threshold, got %+v", snap)
	}
	if snap := timer.Stop(); snap.ActiveTimeMs != 30000 {
		t.Fatalf("expected stop to credit up to idle threshold, got %+v", snap)
	}
}
