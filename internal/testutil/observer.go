package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/netguru/repolib/pkg/api"
)

// Event is one observer callback captured by RecordingObserver.
type Event struct {
	Name     string // start, completed, buffered, replayed
	Request  api.RequestInfo
	Strategy api.Strategy
	Emitted  int
	Err      error
}

// RecordingObserver records every callback it receives.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
}

var _ api.Observer = (*RecordingObserver)(nil)

func (o *RecordingObserver) add(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *RecordingObserver) OnRequestStart(ctx context.Context, req api.RequestInfo, s api.Strategy) {
	o.add(Event{Name: "start", Request: req, Strategy: s})
}

func (o *RecordingObserver) OnRequestCompleted(ctx context.Context, req api.RequestInfo, s api.Strategy, emitted int, err error, d time.Duration) {
	o.add(Event{Name: "completed", Request: req, Strategy: s, Emitted: emitted, Err: err})
}

func (o *RecordingObserver) OnRequestBuffered(ctx context.Context, req api.RequestInfo) {
	o.add(Event{Name: "buffered", Request: req})
}

func (o *RecordingObserver) OnRequestReplayed(ctx context.Context, req api.RequestInfo, err error) {
	o.add(Event{Name: "replayed", Request: req, Err: err})
}

// Events returns a copy of the recorded events.
func (o *RecordingObserver) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

// Named returns the recorded events with the given name.
func (o *RecordingObserver) Named(name string) []Event {
	var out []Event
	for _, e := range o.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
