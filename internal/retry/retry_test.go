package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/EmpoweredVote/geocode/internal/retry"
)

// countingSleep records every pause instead of waiting.
type countingSleep struct {
	calls  int
	delays []time.Duration
}

func (c *countingSleep) sleep(ctx context.Context, d time.Duration) error {
	c.calls++
	c.delays = append(c.delays, d)
	return nil
}

func testPolicy(s *countingSleep) retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = s.sleep
	return p
}

// TestDo_ExhaustsAttempts verifies that the last error is returned after every
// attempt fails.
func TestDo_ExhaustsAttempts(t *testing.T) {
	s := &countingSleep{}
	errBoom := errors.New("boom")
	attempts := 0

	err := retry.Do(context.Background(), testPolicy(s), func(int) error {
		attempts++
		return errBoom
	})

	if !errors.Is(err, errBoom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 5 {
		t.Errorf("expected 5 attempts, got %d", attempts)
	}
	if s.calls != 4 {
		t.Errorf("expected 4 sleeps, got %d", s.calls)
	}
}

// TestDo_StopsOnSuccess verifies that a success ends the loop early.
func TestDo_StopsOnSuccess(t *testing.T) {
	s := &countingSleep{}
	attempts := 0

	err := retry.Do(context.Background(), testPolicy(s), func(attempt int) error {
		attempts++
		if attempt < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if s.calls != 2 {
		t.Errorf("expected 2 sleeps, got %d", s.calls)
	}
}

// TestDo_NonRetryableReturnsImmediately verifies that the predicate can stop
// retrying.
func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	s := &countingSleep{}
	errFatal := errors.New("fatal")
	p := testPolicy(s)
	p.Retryable = func(err error) bool { return !errors.Is(err, errFatal) }

	attempts := 0
	err := retry.Do(context.Background(), p, func(int) error {
		attempts++
		return errFatal
	})

	if !errors.Is(err, errFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if attempts != 1 || s.calls != 0 {
		t.Errorf("expected 1 attempt and no sleeps, got %d attempts, %d sleeps", attempts, s.calls)
	}
}

// TestDo_BackoffCappedAtMaxDelay verifies that a growing delay never exceeds
// MaxDelay.
func TestDo_BackoffCappedAtMaxDelay(t *testing.T) {
	s := &countingSleep{}
	p := testPolicy(s)
	p.Delay = time.Second
	p.Multiplier = 3
	p.MaxDelay = 5 * time.Second

	_ = retry.Do(context.Background(), p, func(int) error { return errors.New("x") })

	want := []time.Duration{time.Second, 3 * time.Second, 5 * time.Second, 5 * time.Second}
	if len(s.delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), s.delays)
	}
	for i := range want {
		if s.delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], s.delays[i])
		}
	}
}

// TestDo_SleepErrorAborts verifies that a cancelled pause ends the loop with
// the context error.
func TestDo_SleepErrorAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := retry.DefaultPolicy()
	p.Delay = time.Hour
	attempts := 0
	err := retry.Do(ctx, p, func(int) error {
		attempts++
		return errors.New("x")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

// TestDoWithResult verifies that the value of the successful attempt is
// returned.
func TestDoWithResult(t *testing.T) {
	s := &countingSleep{}
	got, err := retry.DoWithResult(context.Background(), testPolicy(s), func(attempt int) (string, error) {
		if attempt == 1 {
			return "", errors.New("first")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("expected ok, got %q, %v", got, err)
	}
}

// TestDefaultPolicy_NoLogger verifies that the default policy leaves the
// logger unset so clients can install the process logger, and that Do still
// runs without one.
func TestDefaultPolicy_NoLogger(t *testing.T) {
	p := retry.DefaultPolicy()
	if p.Logger != nil {
		t.Fatal("expected DefaultPolicy to leave Logger nil")
	}
	p.Sleep = (&countingSleep{}).sleep

	attempts := 0
	err := retry.Do(context.Background(), p, func(int) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Errorf("expected success on attempt 2, got %v after %d", err, attempts)
	}
}
