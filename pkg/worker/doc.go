// Package worker drains retry queues in the background.
//
// Controllers replay their buffered requests whenever a new write arrives.
// When writes stop, requests buffered while the remote was unavailable
// would wait forever; a Worker flushes them on an interval instead.
//
// # Flushers
//
// A Worker drives any number of Flushers. Queued and cached controllers
// implement Flusher directly; FlusherFunc adapts anything else.
//
// ProcessOne flushes each of them once. Run repeats that until its context
// is cancelled, pausing between drains according to a ReplayPolicy:
//
//   - after a successful drain it waits Interval
//   - after failed drains it waits InitialBackoff, growing by
//     BackoffMultiplier per further failure, capped at MaxBackoff
//
// A cached controller whose admission check denies does nothing on Flush,
// so running a Worker against it while offline is cheap.
//
// # Usage
//
// Most applications start a worker through the repolib package (Runner,
// LocalRunner), which also owns its lifecycle. Use this package directly
// to drive replay from your own loop or scheduler.
package worker
