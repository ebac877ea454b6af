package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGateBlockUntilOnlyExtends(t *testing.T) {
	bans := &fakeBanStore{}
	g := NewGate(bans, time.Minute, testLogger())

	base := time.UnixMilli(1_000_000)
	g.now = func() time.Time { return base }

	if err := g.BlockUntil(context.Background(), base.Add(30*time.Second).UnixMilli()); err != nil {
		t.Fatalf("BlockUntil: %v", err)
	}
	if !g.Blocked() {
		t.Fatalf("expected gate blocked after BlockUntil")
	}

	// An earlier horizon must not shrink the window.
	if err := g.BlockUntil(context.Background(), base.Add(10*time.Second).UnixMilli()); err != nil {
		t.Fatalf("BlockUntil earlier: %v", err)
	}
	if bans.until != base.Add(30*time.Second).UnixMilli() {
		t.Fatalf("window shrank: persisted %d, want %d", bans.until, base.Add(30*time.Second).UnixMilli())
	}
	if bans.saves != 1 {
		t.Fatalf("earlier horizon persisted: %d saves, want 1", bans.saves)
	}
}

func TestGateNotBlockedAfterWindowPasses(t *testing.T) {
	g := NewGate(&fakeBanStore{}, time.Minute, testLogger())

	now := time.UnixMilli(1_000_000)
	g.now = func() time.Time { return now }

	if err := g.BlockUntil(context.Background(), now.Add(5*time.Second).UnixMilli()); err != nil {
		t.Fatalf("BlockUntil: %v", err)
	}

	now = now.Add(6 * time.Second)
	if g.Blocked() {
		t.Fatalf("gate still blocked after window passed")
	}
}

func TestGateWaitSleepsInChunksAndReloads(t *testing.T) {
	now := time.UnixMilli(0)
	bans := &fakeBanStore{until: now.Add(150 * time.Second).UnixMilli()}
	g := NewGate(bans, 60*time.Second, testLogger())
	g.now = func() time.Time { return now }

	var sleeps []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		now = now.Add(d)
		return nil
	}

	if _, err := g.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	want := []time.Duration{60 * time.Second, 60 * time.Second, 30 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("slept %d times (%v), want %d", len(sleeps), sleeps, len(want))
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestGateWaitObservesBanLiftedElsewhere(t *testing.T) {
	now := time.UnixMilli(0)
	bans := &fakeBanStore{until: now.Add(10 * time.Minute).UnixMilli()}
	g := NewGate(bans, 60*time.Second, testLogger())
	g.now = func() time.Time { return now }

	sleeps := 0
	g.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		now = now.Add(d)
		// Another process clears the shared window during the first chunk.
		bans.until = 0
		return nil
	}

	if _, err := g.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if sleeps != 1 {
		t.Fatalf("slept %d chunks, want 1 once the ban was lifted", sleeps)
	}
}

func TestGateWaitObservesBanExtendedElsewhere(t *testing.T) {
	now := time.UnixMilli(0)
	bans := &fakeBanStore{until: now.Add(30 * time.Second).UnixMilli()}
	g := NewGate(bans, 60*time.Second, testLogger())
	g.now = func() time.Time { return now }

	extended := false
	var sleeps []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		now = now.Add(d)
		if !extended {
			extended = true
			bans.until = now.Add(20 * time.Second).UnixMilli()
		}
		return nil
	}

	if _, err := g.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	want := []time.Duration{30 * time.Second, 20 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("slept %v, want %v", sleeps, want)
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("sleepCtx on cancelled context = %v, want context.Canceled", err)
	}
}
