package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	var slept []time.Duration

	err := do(context.Background(), Default, "op", func(ctx context.Context) error {
		calls++
		return nil
	}, func(d time.Duration) { slept = append(slept, d) })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(slept) != 0 {
		t.Errorf("slept %v, want no sleeps", slept)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	var slept []time.Duration

	err := do(context.Background(), Default, "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(d time.Duration) { slept = append(slept, d) })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	// Default policy: 1s then 2s between attempts.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	lastErr := errors.New("still failing")

	err := do(context.Background(), Default, "op", func(ctx context.Context) error {
		calls++
		return lastErr
	}, func(time.Duration) {})

	if !errors.Is(err, lastErr) {
		t.Errorf("err = %v, want last observed error", err)
	}
	if calls != Default.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, Default.MaxAttempts)
	}
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")

	err := do(context.Background(), Default, "op", func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	}, func(time.Duration) {})

	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped cause", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_DelayIsCapped(t *testing.T) {
	p := Policy{MaxAttempts: 6, BaseDelay: time.Second, Multiplier: 4, Cap: 5 * time.Second}
	var slept []time.Duration

	_ = do(context.Background(), p, "op", func(ctx context.Context) error {
		return errors.New("transient")
	}, func(d time.Duration) { slept = append(slept, d) })

	// 1s, 4s, then capped at 5s.
	want := []time.Duration{time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := do(ctx, Default, "op", func(ctx context.Context) error {
		calls++
		return nil
	}, func(time.Duration) {})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = do(context.Background(), Policy{}, "op", func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	}, func(time.Duration) {})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
