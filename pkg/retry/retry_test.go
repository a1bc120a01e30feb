package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestComputeBackoff_Exponential(t *testing.T) {
	policy := Policy{Name: "p", Base: 100 * time.Millisecond, Max: time.Second, MaxAttempts: 6}

	want := []time.Duration{0, 100, 200, 400, 800, 1000, 1000}
	for attempt, w := range want {
		got := ComputeBackoff(policy, "rec-1", attempt)
		if got != w*time.Millisecond {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, w*time.Millisecond)
		}
	}

	if got := ComputeBackoff(policy, "rec-1", 90); got != time.Second {
		t.Errorf("large attempt must cap at Max, got %v", got)
	}
}

func TestComputeBackoff_DeterministicJitter(t *testing.T) {
	policy := Policy{Name: "p", Base: 10 * time.Millisecond, Max: time.Second, MaxJitter: 50 * time.Millisecond}

	a := ComputeBackoff(policy, "rec-1", 2)
	b := ComputeBackoff(policy, "rec-1", 2)
	if a != b {
		t.Fatalf("jitter not deterministic: %v != %v", a, b)
	}
	if a < 20*time.Millisecond || a >= 70*time.Millisecond {
		t.Errorf("delay %v outside [20ms, 70ms)", a)
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	policy := Policy{Name: "p", Base: time.Millisecond, Max: 2 * time.Millisecond, MaxAttempts: 5}
	calls := 0
	err := Do(context.Background(), policy, "k", func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	policy := Policy{Name: "p", Base: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3}
	boom := errors.New("ledger down")
	calls := 0
	err := Do(context.Background(), policy, "k", func(context.Context, int) error {
		calls++
		return boom
	})
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want exhausted wrapping cause", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_Permanent(t *testing.T) {
	policy := Policy{Name: "p", Base: time.Millisecond, MaxAttempts: 5}
	bad := errors.New("rejected")
	calls := 0
	err := Do(context.Background(), policy, "k", func(context.Context, int) error {
		calls++
		return Permanent(bad)
	})
	if !errors.Is(err, bad) || errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want the permanent cause", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	policy := Policy{Name: "p", Base: time.Hour, Max: time.Hour, MaxAttempts: 3}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, policy, "k", func(context.Context, int) error { return errors.New("x") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
