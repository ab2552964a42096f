package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netguru/repolib/internal/controller"
	"github.com/netguru/repolib/internal/testutil"
	"github.com/netguru/repolib/pkg/api"
)

type contact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func contactID(c contact) string { return c.ID }

var errUnavailable = errors.New("remote unavailable")

func newEngine(t *testing.T, cfg Config[contact]) *Engine[contact] {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// receive reads n values or fails after a timeout.
func receive(t *testing.T, sub api.Subscription[contact], n int) []contact {
	t.Helper()
	var out []contact
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case v := <-sub.C():
			out = append(out, v)
		case <-timeout:
			t.Fatalf("received %d of %d values", len(out), n)
		}
	}
	return out
}

func assertNothingReceived(t *testing.T, sub api.Subscription[contact]) {
	t.Helper()
	select {
	case v := <-sub.C():
		t.Fatalf("unexpected value on output stream: %+v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestFetch_DefaultStrategyMirrorsRemote(t *testing.T) {
	ctx := context.Background()
	local := testutil.NewFakeSource(contactID, contact{ID: "A"}, contact{ID: "B"})
	remote := testutil.NewFakeSource(contactID, contact{ID: "C"}, contact{ID: "D"}, contact{ID: "E"})
	e := newEngine(t, Config[contact]{Local: local, Remote: remote})

	sub := e.Subscribe()
	require.NoError(t, e.Fetch(ctx, api.All()))

	want := []contact{{ID: "C"}, {ID: "D"}, {ID: "E"}}
	assert.Equal(t, want, receive(t, sub, 3))
	assertNothingReceived(t, sub)
	assert.Equal(t, want, local.Items())
}

func TestFetch_FallsBackToLocalWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	local := testutil.NewFakeSource(contactID, contact{ID: "A"})
	remote := testutil.NewFakeSource(contactID)
	remote.FailNext(testutil.MethodFetch, errUnavailable)
	e := newEngine(t, Config[contact]{Local: local, Remote: remote})

	sub := e.Subscribe()
	require.NoError(t, e.Fetch(ctx, api.All()))
	assert.Equal(t, []contact{{ID: "A"}}, receive(t, sub, 1))
}

func TestWrites_GoToRemoteByDefault(t *testing.T) {
	ctx := context.Background()
	local := testutil.NewFakeSource(contactID)
	remote := testutil.NewFakeSource(contactID, contact{ID: "1", Name: "old"})
	e := newEngine(t, Config[contact]{Local: local, Remote: remote})

	sub := e.Subscribe()
	require.NoError(t, e.Create(ctx, contact{ID: "2"}))
	require.NoError(t, e.Update(ctx, contact{ID: "1", Name: "new"}))
	require.NoError(t, e.Delete(ctx, api.ByID("2")))

	assert.Equal(t, []contact{{ID: "2"}, {ID: "1", Name: "new"}, {ID: "2"}}, receive(t, sub, 3))
	assert.Empty(t, local.Calls())
	assert.Equal(t, []contact{{ID: "1", Name: "new"}}, remote.Items())
}

func TestErrorsNeverReachOutput(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(contactID)
	e := newEngine(t, Config[contact]{Local: testutil.NewFakeSource(contactID), Remote: remote})

	sub := e.Subscribe()
	err := e.Update(ctx, contact{ID: "missing"})
	assert.ErrorIs(t, err, api.ErrNotFound)
	assertNothingReceived(t, sub)

	// the stream stays usable after a failed operation
	require.NoError(t, e.Create(ctx, contact{ID: "ok"}))
	assert.Equal(t, []contact{{ID: "ok"}}, receive(t, sub, 1))
}

func TestCustomFactory(t *testing.T) {
	ctx := context.Background()
	local := testutil.NewFakeSource(contactID)
	remote := testutil.NewFakeSource(contactID)
	factory := api.StrategyFactoryFunc[contact](func(req api.Request[contact]) api.Strategy {
		if req.Kind() == api.KindCreate {
			return api.Both
		}
		return api.OnlyLocal
	})
	e := newEngine(t, Config[contact]{Local: local, Remote: remote, Factory: factory})

	require.NoError(t, e.Create(ctx, contact{ID: "x"}))
	assert.Equal(t, []contact{{ID: "x"}}, local.Items())
	assert.Equal(t, []contact{{ID: "x"}}, remote.Items())

	require.NoError(t, e.Fetch(ctx, api.All()))
	assert.Equal(t, 1, local.CallCount(testutil.MethodFetch))
	assert.Zero(t, remote.CallCount(testutil.MethodFetch))
}

func TestCustomCombinators(t *testing.T) {
	ctx := context.Background()
	const remoteThenLocal = api.StrategyCustom + 1

	var calls atomic.Int32
	chain := func(ctx context.Context, local, remote api.DataSource[contact], action api.Action[contact]) api.Sequence[contact] {
		return func(yield func(contact, error) bool) {
			calls.Add(1)
			for v, err := range action(ctx, remote) {
				if !yield(v, err) || err != nil {
					return
				}
			}
			action(ctx, local)(yield)
		}
	}

	local := testutil.NewFakeSource(contactID, contact{ID: "L"})
	remote := testutil.NewFakeSource(contactID, contact{ID: "R"})
	e := newEngine(t, Config[contact]{
		Local:       local,
		Remote:      remote,
		Factory:     api.StrategyFactoryFunc[contact](func(api.Request[contact]) api.Strategy { return remoteThenLocal }),
		Combinators: map[api.Strategy]api.Combinator[contact]{remoteThenLocal: chain},
	})

	sub := e.Subscribe()
	require.NoError(t, e.Fetch(ctx, api.All()))
	assert.Equal(t, []contact{{ID: "R"}, {ID: "L"}}, receive(t, sub, 2))
	assert.EqualValues(t, 1, calls.Load())

	assert.Error(t, e.RegisterCombinator(remoteThenLocal, chain), "duplicate registration")
	assert.Error(t, e.RegisterCombinator(api.Both, chain), "built-in strategies cannot be replaced")
	assert.Error(t, e.RegisterCombinator(api.StrategyCustom+2, nil))
}

func TestUnknownStrategy(t *testing.T) {
	ctx := context.Background()
	obs := &testutil.RecordingObserver{}
	e := newEngine(t, Config[contact]{
		Local:    testutil.NewFakeSource(contactID),
		Remote:   testutil.NewFakeSource(contactID),
		Factory:  api.StrategyFactoryFunc[contact](func(api.Request[contact]) api.Strategy { return api.StrategyCustom + 7 }),
		Observer: obs,
	})

	err := e.Fetch(ctx, api.All())
	assert.ErrorIs(t, err, api.ErrUnknownStrategy)

	completed := obs.Named("completed")
	require.Len(t, completed, 1)
	assert.ErrorIs(t, completed[0].Err, api.ErrUnknownStrategy)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config[contact]{Local: testutil.NewFakeSource(contactID)})
	assert.ErrorIs(t, err, api.ErrNilDataSource)

	_, err = New(Config[contact]{
		Local:       testutil.NewFakeSource(contactID),
		Remote:      testutil.NewFakeSource(contactID),
		Combinators: map[api.Strategy]api.Combinator[contact]{api.OnlyLocal: nil},
	})
	assert.Error(t, err)
}

func TestNilQuery(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config[contact]{Local: testutil.NewFakeSource(contactID), Remote: testutil.NewFakeSource(contactID)})

	assert.ErrorIs(t, e.Fetch(ctx, nil), api.ErrNilQuery)
	assert.ErrorIs(t, e.Delete(ctx, nil), api.ErrNilQuery)
	assert.ErrorIs(t, e.FetchAsync(ctx, nil).Wait(ctx), api.ErrNilQuery)
}

func TestObserverSeesEveryRequest(t *testing.T) {
	ctx := context.Background()
	obs := &testutil.RecordingObserver{}
	remote := testutil.NewFakeSource(contactID, contact{ID: "1"}, contact{ID: "2"})
	e := newEngine(t, Config[contact]{Local: testutil.NewFakeSource(contactID), Remote: remote, Observer: obs})

	require.NoError(t, e.Fetch(ctx, api.All()))
	require.Error(t, e.Update(ctx, contact{ID: "zzz"}))

	starts := obs.Named("start")
	require.Len(t, starts, 2)
	assert.Equal(t, api.KindFetch, starts[0].Request.Kind)
	assert.Equal(t, "all", starts[0].Request.Query)
	assert.Equal(t, api.LocalAfterFullUpdateOrFailureOfRemote, starts[0].Strategy)

	completed := obs.Named("completed")
	require.Len(t, completed, 2)
	assert.Equal(t, 2, completed[0].Emitted)
	assert.NoError(t, completed[0].Err)
	assert.Equal(t, api.OnlyRemote, completed[1].Strategy)
	assert.ErrorIs(t, completed[1].Err, api.ErrNotFound)
}

func TestAsyncOperations(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(contactID)
	e := newEngine(t, Config[contact]{Local: testutil.NewFakeSource(contactID), Remote: remote})

	handles := []*api.Completion{
		e.CreateAsync(ctx, contact{ID: "a"}),
		e.CreateAsync(ctx, contact{ID: "b"}),
		e.UpdateAsync(ctx, contact{ID: "nope"}),
	}
	require.NoError(t, handles[0].Wait(ctx))
	require.NoError(t, handles[1].Wait(ctx))
	assert.ErrorIs(t, handles[2].Wait(ctx), api.ErrNotFound)
	assert.ErrorIs(t, handles[2].Err(), api.ErrNotFound)
	assert.ElementsMatch(t, []contact{{ID: "a"}, {ID: "b"}}, remote.Items())

	require.NoError(t, e.DeleteAsync(ctx, api.ByID("a")).Wait(ctx))
	require.NoError(t, e.FetchAsync(ctx, api.All()).Wait(ctx))
}

func TestCancelStopsOnlyThatOperation(t *testing.T) {
	ctx := context.Background()
	local := testutil.NewFakeSource(contactID, contact{ID: "local"})
	remote := testutil.NewFakeSource(contactID, contact{ID: "remote"})
	factory := api.StrategyFactoryFunc[contact](func(req api.Request[contact]) api.Strategy {
		if req.Kind() == api.KindFetch {
			return api.OnlyRemote
		}
		return api.OnlyLocal
	})
	e := newEngine(t, Config[contact]{Local: local, Remote: remote, Factory: factory})
	sub := e.Subscribe()

	release := remote.Gate(testutil.MethodFetch)
	defer release()

	slow := e.FetchAsync(ctx, api.All())
	other := e.CreateAsync(ctx, contact{ID: "fast"})
	require.NoError(t, other.Wait(ctx))
	assert.Equal(t, []contact{{ID: "fast"}}, receive(t, sub, 1))

	slow.Cancel()
	assert.ErrorIs(t, slow.Wait(ctx), context.Canceled)
	assertNothingReceived(t, sub)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	e, err := New(Config[contact]{Local: testutil.NewFakeSource(contactID), Remote: testutil.NewFakeSource(contactID)})
	require.NoError(t, err)

	sub := e.Subscribe()
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, open := <-sub.C()
	assert.False(t, open)

	assert.ErrorIs(t, e.Create(ctx, contact{ID: "late"}), api.ErrEngineClosed)
	assert.ErrorIs(t, e.CreateAsync(ctx, contact{ID: "late"}).Wait(ctx), api.ErrEngineClosed)
}

func TestSlowSubscriberKeepsLatest(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(contactID,
		contact{ID: "1"}, contact{ID: "2"}, contact{ID: "3"}, contact{ID: "4"},
	)
	factory := api.StrategyFactoryFunc[contact](func(api.Request[contact]) api.Strategy { return api.OnlyRemote })
	e := newEngine(t, Config[contact]{
		Local:        testutil.NewFakeSource(contactID),
		Remote:       remote,
		Factory:      factory,
		OutputBuffer: 1,
	})

	sub := e.Subscribe()
	require.NoError(t, e.Fetch(ctx, api.All()))

	assert.Equal(t, []contact{{ID: "4"}}, receive(t, sub, 1))
	assert.EqualValues(t, 3, sub.Dropped())
}

func TestEngineOverCachedController(t *testing.T) {
	ctx := context.Background()
	local := testutil.NewFakeSource(contactID)
	remote := testutil.NewFakeSource(contactID)

	var online atomic.Bool
	cached, err := controller.NewCached[contact](remote, nil, api.AdmissionFunc(online.Load), controller.Options{ReadThrough: true})
	require.NoError(t, err)

	e := newEngine(t, Config[contact]{Local: local, Remote: cached})
	sub := e.Subscribe()

	// offline: the write is buffered and the call succeeds without output
	require.NoError(t, e.Create(ctx, contact{ID: "draft"}))
	assertNothingReceived(t, sub)
	assert.Empty(t, remote.Items())

	online.Store(true)
	require.NoError(t, e.Create(ctx, contact{ID: "final"}))
	assert.Equal(t, []contact{{ID: "draft"}, {ID: "final"}}, receive(t, sub, 2))

	require.NoError(t, e.Fetch(ctx, api.All()))
	assert.Equal(t, []contact{{ID: "draft"}, {ID: "final"}}, receive(t, sub, 2))
	assert.Equal(t, remote.Items(), local.Items())
}
