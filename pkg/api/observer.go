package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from engines and controllers for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay request execution.
type Observer interface {
	// OnRequestStart is called once per engine operation after its strategy
	// has been selected and before any DataSource is contacted.
	OnRequestStart(ctx context.Context, req RequestInfo, s Strategy)

	// OnRequestCompleted is called when an engine operation finishes, for
	// both successes and failures (err != nil). emitted counts the entities
	// published to the output stream.
	OnRequestCompleted(ctx context.Context, req RequestInfo, s Strategy, emitted int, err error, d time.Duration)

	// OnRequestBuffered is called when a controller parks a request in its
	// retry queue because admission was denied.
	OnRequestBuffered(ctx context.Context, req RequestInfo)

	// OnRequestReplayed is called after a controller replays a buffered
	// request, with the replay's error if it failed and stayed queued.
	OnRequestReplayed(ctx context.Context, req RequestInfo, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRequestStart(ctx context.Context, req RequestInfo, s Strategy) {}
func (NoopObserver) OnRequestCompleted(ctx context.Context, req RequestInfo, s Strategy, emitted int, err error, d time.Duration) {
}
func (NoopObserver) OnRequestBuffered(ctx context.Context, req RequestInfo)             {}
func (NoopObserver) OnRequestReplayed(ctx context.Context, req RequestInfo, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRequestStart(ctx context.Context, req RequestInfo, s Strategy) {
	for _, o := range c.observers {
		o.OnRequestStart(ctx, req, s)
	}
}

func (c *CompositeObserver) OnRequestCompleted(ctx context.Context, req RequestInfo, s Strategy, emitted int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnRequestCompleted(ctx, req, s, emitted, err, d)
	}
}

func (c *CompositeObserver) OnRequestBuffered(ctx context.Context, req RequestInfo) {
	for _, o := range c.observers {
		o.OnRequestBuffered(ctx, req)
	}
}

func (c *CompositeObserver) OnRequestReplayed(ctx context.Context, req RequestInfo, err error) {
	for _, o := range c.observers {
		o.OnRequestReplayed(ctx, req, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs request lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRequestStart(ctx context.Context, req RequestInfo, s Strategy) {
	o.Logger.DebugContext(ctx, "request_start",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.String("query", req.Query),
		slog.String("strategy", s.String()),
	)
}

func (o *LoggingObserver) OnRequestCompleted(ctx context.Context, req RequestInfo, s Strategy, emitted int, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "request_completed",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.String("strategy", s.String()),
		slog.Int("emitted", emitted),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnRequestBuffered(ctx context.Context, req RequestInfo) {
	o.Logger.InfoContext(ctx, "request_buffered",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.String("query", req.Query),
	)
}

func (o *LoggingObserver) OnRequestReplayed(ctx context.Context, req RequestInfo, err error) {
	if err != nil {
		o.Logger.WarnContext(ctx, "replay_failed",
			slog.String("request_id", req.ID),
			slog.String("kind", string(req.Kind)),
			slog.Any("error", err),
		)
		return
	}
	o.Logger.DebugContext(ctx, "request_replayed",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
	)
}

// BasicMetrics collects simple counters and aggregate request durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	requestsStarted   atomic.Int64
	requestsCompleted atomic.Int64
	requestsFailed    atomic.Int64
	entitiesEmitted   atomic.Int64
	buffered          atomic.Int64
	replayed          atomic.Int64
	replayFailures    atomic.Int64
	totalDuration     atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RequestsStarted   int64
	RequestsCompleted int64
	RequestsFailed    int64
	InFlight          int64

	EntitiesEmitted int64
	Buffered        int64
	Replayed        int64
	ReplayFailures  int64

	AvgDuration time.Duration
}

func (m *BasicMetrics) OnRequestStart(ctx context.Context, req RequestInfo, s Strategy) {
	m.requestsStarted.Add(1)
}

func (m *BasicMetrics) OnRequestCompleted(ctx context.Context, req RequestInfo, s Strategy, emitted int, err error, d time.Duration) {
	m.entitiesEmitted.Add(int64(emitted))
	if err != nil {
		m.requestsFailed.Add(1)
		return
	}
	// Only successful requests count towards the average duration.
	m.requestsCompleted.Add(1)
	m.totalDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnRequestBuffered(ctx context.Context, req RequestInfo) {
	m.buffered.Add(1)
}

func (m *BasicMetrics) OnRequestReplayed(ctx context.Context, req RequestInfo, err error) {
	if err != nil {
		m.replayFailures.Add(1)
		return
	}
	m.replayed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.requestsStarted.Load()
	completed := m.requestsCompleted.Load()
	failed := m.requestsFailed.Load()
	totalNs := m.totalDuration.Load()

	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNs / completed)
	}

	return BasicMetricsSnapshot{
		RequestsStarted:   started,
		RequestsCompleted: completed,
		RequestsFailed:    failed,
		InFlight:          started - completed - failed,
		EntitiesEmitted:   m.entitiesEmitted.Load(),
		Buffered:          m.buffered.Load(),
		Replayed:          m.replayed.Load(),
		ReplayFailures:    m.replayFailures.Load(),
		AvgDuration:       avg,
	}
}
