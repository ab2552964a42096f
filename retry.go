package repolib

import "time"

// ReplayBuilder provides a fluent way to construct ReplayPolicy values for
// Runner and LocalRunner.
type ReplayBuilder struct {
	policy ReplayPolicy
}

// Replay creates a ReplayBuilder draining every interval.
//
// interval <= 0 selects the worker default.
func Replay(interval time.Duration) ReplayBuilder {
	if interval < 0 {
		interval = 0
	}
	return ReplayBuilder{policy: ReplayPolicy{Interval: interval}}
}

// WithExponentialBackoff configures the pause after failed drains:
//
//   - initial is the pause after the first failure.
//   - multiplier > 1 grows the pause per further failure (default 2.0 if <= 0).
//   - max caps the pause; if <= 0, there is no cap.
//
// Example:
//
//	Replay(time.Minute).WithExponentialBackoff(time.Second, 2.0, 5*time.Minute)
func (r ReplayBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) ReplayBuilder {
	p := r.policy
	p.InitialBackoff = initial
	p.MaxBackoff = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return ReplayBuilder{policy: p}
}

// WithConstantBackoff waits delay after every failed drain.
func (r ReplayBuilder) WithConstantBackoff(delay time.Duration) ReplayBuilder {
	p := r.policy
	p.InitialBackoff = delay
	p.MaxBackoff = 0
	p.BackoffMultiplier = 1.0
	return ReplayBuilder{policy: p}
}

// Policy returns the underlying ReplayPolicy.
func (r ReplayBuilder) Policy() ReplayPolicy {
	return r.policy
}
