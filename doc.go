// Package repolib keeps a local copy of remote data in step with its source.
//
// An application talks to one Engine. Every request (fetch, create, update,
// delete) is routed to a local DataSource, a remote DataSource, or both,
// according to a per-request Strategy. Whatever the chosen sources emit is
// republished on a single output stream that any number of subscribers can
// watch. Operation calls only report success or failure; entities flow
// through the stream.
//
// # Core Concepts
//
//  1. DataSource
//  2. Engine
//  3. Strategy
//  4. Controller
//  5. Runner
//
// # DataSource
//
// A DataSource exposes create, update, delete and fetch. Each call returns a
// lazy Sequence: nothing happens until the caller ranges over it, and a
// failure is delivered as the final element.
//
// Ready-made sources:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres (package postgres)
//   - Redis (package redis)
//   - MongoDB (package mongo)
//
// Entities are stored as JSON, so T must round-trip through encoding/json.
//
// # Strategy
//
// A StrategyFactory picks one Strategy per request:
//
//   - OnlyLocal and OnlyRemote use a single source.
//   - Both runs local and remote concurrently and merges their emissions.
//   - LocalOnRemoteFailure tries remote and falls back to local.
//   - LocalAfterFullUpdateWithRemote refreshes local from remote, then
//     reads local.
//   - LocalAfterFullUpdateOrFailureOfRemote does the same, and reads local
//     when the refresh fails.
//
// The default factory reads through a refreshed local mirror and writes
// to remote. Values from StrategyCustom upwards are resolved from
// combinators registered on the engine.
//
// # Controller
//
// A Controller sits in front of a remote source. The direct controller just
// passes requests through. The queued controller buffers every write in a
// retry Queue and drains the whole queue in order before answering, so
// writes always reach the remote in the order they were issued. The cached
// controller additionally consults an AdmissionCheck and only buffers while
// the check denies; a Breaker built on sony/gobreaker is a ready-made check.
//
// Retry queues exist in memory and in SQLite, Postgres, Redis and MongoDB.
//
// # Runner
//
// A Runner replays buffered writes in the background according to a
// ReplayPolicy. LocalRunner and Bundle wire a full stack for development and
// for SQLite-backed applications respectively.
//
// # Observability
//
// Observers are notified when a request starts, completes, is buffered or
// is replayed. NewLoggingObserver logs through log/slog and
// NewMetricsObserver records OpenTelemetry metrics.
package repolib
