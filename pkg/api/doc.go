// Package api contains the core contracts of the repolib reconciliation
// engine. It defines the types shared by the engine, the retry queues,
// the controllers and the backend adapters.
//
// Most users interact with the higher-level repolib package, which re-exports
// selected types and provides constructors. The api package is intended for
// custom DataSource implementations, custom strategies and contributors
// extending the engine itself.
//
// # Sequences
//
// Every DataSource call returns a Sequence, a lazy stream of entities that
// may fail. A Sequence is a range-over-func iterator yielding (entity, error)
// pairs; nothing reaches the backend until it is ranged over, and a failure
// is the last thing a Sequence yields.
//
// # Requests and queries
//
// Public operations are normalized into a Request: Create and Update carry
// an entity, Delete and Fetch carry a Query. Queries are opaque to the
// engine; the built-in AllQuery, IDQuery and ParamsQuery are understood by
// every adapter in this module.
//
// # Strategies
//
// A StrategyFactory picks one of the Strategy values for each request. The
// strategy decides how the request's Action is applied to the local and the
// remote DataSource:
//
//   - OnlyLocal and OnlyRemote target a single side
//   - Both runs both sides concurrently and merges their emissions
//   - LocalOnRemoteFailure falls back to local when remote fails
//   - LocalAfterFullUpdateWithRemote mirrors remote into local first
//   - LocalAfterFullUpdateOrFailureOfRemote mirrors, or degrades to local
//
// Engines can be extended with additional strategies registered as a
// Combinator under a value at or above StrategyCustom.
//
// # Controllers
//
// A Controller is a DataSource that may buffer Create, Update and Delete
// requests in a retry queue. A cached controller consults an AdmissionCheck
// before each request and replays the queue, oldest first, whenever it is
// admitted.
//
// # Observability
//
// Engines and controllers report request lifecycle events to an Observer.
// LoggingObserver writes slog records, BasicMetrics keeps in-process
// counters and MetricsObserver records OpenTelemetry instruments.
// NewCompositeObserver combines several of them.
package api
