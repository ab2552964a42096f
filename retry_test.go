package repolib

import (
	"testing"
	"time"
)

// Ensure a negative interval is normalized to the worker default.
func TestReplay_NegativeIntervalUsesDefault(t *testing.T) {
	p := Replay(-time.Second).Policy()
	if p.Interval != 0 {
		t.Fatalf("expected Interval=0 for Replay(-1s), got %v", p.Interval)
	}
	if got := p.Delay(0); got != 5*time.Second {
		t.Fatalf("expected default delay 5s, got %v", got)
	}
}

// Ensure WithExponentialBackoff wires fields correctly and default multiplier is applied.
func TestReplay_WithExponentialBackoff_UsesDefaults(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 2 * time.Second

	p := Replay(time.Minute).
		WithExponentialBackoff(initial, 0, max).
		Policy()

	if p.Interval != time.Minute {
		t.Fatalf("expected Interval=1m, got %v", p.Interval)
	}
	if p.InitialBackoff != initial {
		t.Fatalf("expected InitialBackoff=%v, got %v", initial, p.InitialBackoff)
	}
	if p.MaxBackoff != max {
		t.Fatalf("expected MaxBackoff=%v, got %v", max, p.MaxBackoff)
	}
	if p.BackoffMultiplier != 2.0 {
		t.Fatalf("expected BackoffMultiplier=2.0 (default), got %v", p.BackoffMultiplier)
	}
}

// Ensure the resulting policy backs off and then recovers to the interval.
func TestReplay_ExponentialPolicyDelays(t *testing.T) {
	p := Replay(time.Minute).
		WithExponentialBackoff(50*time.Millisecond, 3.0, 500*time.Millisecond).
		Policy()

	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, 50 * time.Millisecond},
		{2, 150 * time.Millisecond},
		{3, 450 * time.Millisecond},
		{4, 500 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.failures); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

// Ensure WithConstantBackoff always waits the same delay.
func TestReplay_WithConstantBackoff(t *testing.T) {
	delay := 200 * time.Millisecond

	p := Replay(time.Minute).WithConstantBackoff(delay).Policy()

	if p.BackoffMultiplier != 1.0 || p.MaxBackoff != 0 {
		t.Fatalf("unexpected constant policy: %+v", p)
	}
	for _, failures := range []int{1, 2, 10} {
		if got := p.Delay(failures); got != delay {
			t.Fatalf("Delay(%d) = %v, want %v", failures, got, delay)
		}
	}
}
