package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netguru/repolib/internal/retryqueue"
	"github.com/netguru/repolib/internal/testutil"
	"github.com/netguru/repolib/pkg/api"
)

type note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func noteID(n note) string { return n.ID }

var errOffline = errors.New("remote offline")

func createdIDs(calls []testutil.Call[note]) []string {
	var ids []string
	for _, c := range calls {
		if c.Method == testutil.MethodCreate {
			ids = append(ids, c.Entity.ID)
		}
	}
	return ids
}

func preload(t *testing.T, q retryqueue.Queue[note], ids ...string) {
	t.Helper()
	for _, id := range ids {
		added, err := q.Add(context.Background(), api.NewCreate(note{ID: id}))
		require.NoError(t, err)
		require.True(t, added)
	}
}

func pendingIDs(t *testing.T, c api.Controller[note]) []string {
	t.Helper()
	reqs, err := c.Pending(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, r := range reqs {
		ids = append(ids, r.Entity().ID)
	}
	return ids
}

func TestDirect_PassesThrough(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID, note{ID: "a"})
	c, err := NewDirect[note](remote)
	require.NoError(t, err)

	got, err := api.Collect(c.Fetch(ctx, api.All()))
	require.NoError(t, err)
	assert.Equal(t, []note{{ID: "a"}}, got)

	remote.FailNext(testutil.MethodCreate, errOffline)
	_, err = api.Collect(c.Create(ctx, note{ID: "b"}))
	assert.ErrorIs(t, err, errOffline)

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNew_RequiresDataSource(t *testing.T) {
	_, err := NewDirect[note](nil)
	assert.ErrorIs(t, err, api.ErrNilDataSource)

	_, err = NewQueued[note](nil, nil, Options{})
	assert.ErrorIs(t, err, api.ErrNilDataSource)

	_, err = NewCached[note](nil, nil, nil, Options{})
	assert.ErrorIs(t, err, api.ErrNilDataSource)
}

func TestQueued_DrainsBufferedBeforeNewRequest(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID)
	queue := retryqueue.NewInMemoryQueue[note](nil)
	preload(t, queue, "m1", "m2", "m3")

	c, err := NewQueued[note](remote, queue, Options{})
	require.NoError(t, err)

	got, err := api.Collect(c.Create(ctx, note{ID: "r"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m2", "m3", "r"}, createdIDs(remote.Calls()))
	assert.Equal(t, []note{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}, {ID: "r"}}, got)

	empty, err := queue.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestQueued_FailedReplayStaysQueuedOnce(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID)
	queue := retryqueue.NewInMemoryQueue[note](nil)
	preload(t, queue, "m1", "m2")
	obs := &testutil.RecordingObserver{}

	c, err := NewQueued[note](remote, queue, Options{Observer: obs})
	require.NoError(t, err)

	remote.FailNext(testutil.MethodCreate, errOffline)
	got, err := api.Collect(c.Create(ctx, note{ID: "r"}))
	require.NoError(t, err, "a buffered request's failure must not fail the caller")
	assert.Equal(t, []note{{ID: "m2"}, {ID: "r"}}, got)
	assert.Equal(t, []string{"m1"}, pendingIDs(t, c))

	remote.FailNext(testutil.MethodCreate, errOffline)
	n, err := c.Flush(ctx)
	assert.ErrorIs(t, err, errOffline)
	assert.Zero(t, n)
	assert.Equal(t, []string{"m1"}, pendingIDs(t, c))

	replayed := obs.Named("replayed")
	require.Len(t, replayed, 3)
	assert.ErrorIs(t, replayed[0].Err, errOffline)
	assert.NoError(t, replayed[1].Err)
	assert.ErrorIs(t, replayed[2].Err, errOffline)
}

func TestQueued_OwnFailureIsReportedAndBuffered(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID)
	obs := &testutil.RecordingObserver{}
	c, err := NewQueued[note](remote, nil, Options{Observer: obs})
	require.NoError(t, err)

	remote.FailNext(testutil.MethodCreate, errOffline)
	_, err = api.Collect(c.Create(ctx, note{ID: "r"}))
	assert.ErrorIs(t, err, errOffline)
	assert.Equal(t, []string{"r"}, pendingIDs(t, c))
	assert.Len(t, obs.Named("buffered"), 1)

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, pendingIDs(t, c))
	assert.Equal(t, []note{{ID: "r"}}, remote.Items())
}

func TestQueued_RejectsFetch(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID, note{ID: "a"})
	c, err := NewQueued[note](remote, nil, Options{})
	require.NoError(t, err)

	_, err = api.Collect(c.Fetch(ctx, api.All()))
	assert.ErrorIs(t, err, api.ErrUnsupportedOperation)
	assert.Zero(t, remote.CallCount(testutil.MethodFetch))
	assert.Empty(t, pendingIDs(t, c))

	_, err = api.Collect(c.Submit(ctx, api.NewFetch[note](api.ByID("a"))))
	assert.ErrorIs(t, err, api.ErrUnsupportedOperation)
}

func TestQueued_ReadThrough(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID, note{ID: "a"})
	c, err := NewQueued[note](remote, nil, Options{ReadThrough: true})
	require.NoError(t, err)

	got, err := api.Collect(c.Fetch(ctx, api.All()))
	require.NoError(t, err)
	assert.Equal(t, []note{{ID: "a"}}, got)
	assert.Empty(t, pendingIDs(t, c))
}

func TestQueued_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID, note{ID: "a"}, note{ID: "b"})
	c, err := NewQueued[note](remote, nil, Options{})
	require.NoError(t, err)

	got, err := api.Collect(c.Update(ctx, note{ID: "a", Text: "edited"}))
	require.NoError(t, err)
	assert.Equal(t, []note{{ID: "a", Text: "edited"}}, got)

	got, err = api.Collect(c.Delete(ctx, api.ByID("b")))
	require.NoError(t, err)
	assert.Equal(t, []note{{ID: "b"}}, got)

	_, err = api.Collect(c.Update(ctx, note{ID: "zzz"}))
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, []note{{ID: "a", Text: "edited"}}, remote.Items())
}

func TestQueued_ConcurrentSubmitsRunOnce(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID)
	c, err := NewQueued[note](remote, nil, Options{})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := api.Drain(c.Create(ctx, note{ID: fmt.Sprintf("n%02d", i)}))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ids := createdIDs(remote.Calls())
	assert.Len(t, ids, n)
	seen := make(map[string]int)
	for _, id := range ids {
		seen[id]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "request %s ran more than once", id)
	}
	assert.Empty(t, pendingIDs(t, c))
}

func TestCached_DeniedBuffersWithoutCallingRemote(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID)
	obs := &testutil.RecordingObserver{}
	var online atomic.Bool
	gate := api.AdmissionFunc(online.Load)

	c, err := NewCached[note](remote, nil, gate, Options{Observer: obs})
	require.NoError(t, err)

	got, err := api.Collect(c.Create(ctx, note{ID: "a"}))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, remote.Calls())
	assert.Equal(t, []string{"a"}, pendingIDs(t, c))
	assert.Len(t, obs.Named("buffered"), 1)

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "flush waits for admission")

	online.Store(true)
	got, err = api.Collect(c.Create(ctx, note{ID: "b"}))
	require.NoError(t, err)
	assert.Equal(t, []note{{ID: "a"}, {ID: "b"}}, got)
	assert.Empty(t, pendingIDs(t, c))
}

func TestCached_FlushAfterAdmission(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID)
	var online atomic.Bool
	c, err := NewCached[note](remote, nil, api.AdmissionFunc(online.Load), Options{})
	require.NoError(t, err)

	for _, id := range []string{"a", "b"} {
		_, err := api.Drain(c.Create(ctx, note{ID: id}))
		require.NoError(t, err)
	}

	online.Store(true)
	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, createdIDs(remote.Calls()))
}

func TestCached_DedupPolicy(t *testing.T) {
	ctx := context.Background()
	denied := api.AdmissionFunc(func() bool { return false })

	byContent, err := NewCached[note](testutil.NewFakeSource(noteID), nil, denied, Options{})
	require.NoError(t, err)
	byInstance, err := NewCached[note](testutil.NewFakeSource(noteID), retryqueue.NewInMemoryQueue[note](retryqueue.KeyByInstance[note]), denied, Options{})
	require.NoError(t, err)

	for _, c := range []*Cached[note]{byContent, byInstance} {
		for range 2 {
			_, err := api.Drain(c.Update(ctx, note{ID: "a", Text: "same edit"}))
			require.NoError(t, err)
		}
	}

	assert.Equal(t, []string{"a"}, pendingIDs(t, byContent))
	assert.Equal(t, []string{"a", "a"}, pendingIDs(t, byInstance))
}

func TestCached_RepeatedEditReplaysInSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(noteID, note{ID: "a", Text: "v0"})
	var online atomic.Bool
	c, err := NewCached[note](remote, nil, api.AdmissionFunc(online.Load), Options{})
	require.NoError(t, err)

	for _, text := range []string{"v1", "v2", "v1"} {
		_, err := api.Drain(c.Update(ctx, note{ID: "a", Text: text}))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "a"}, pendingIDs(t, c))

	online.Store(true)
	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []note{{ID: "a", Text: "v1"}}, remote.Items(), "the last submitted edit wins")
}

func TestCached_FetchIsNeverBuffered(t *testing.T) {
	ctx := context.Background()
	denied := api.AdmissionFunc(func() bool { return false })
	c, err := NewCached[note](testutil.NewFakeSource(noteID), nil, denied, Options{})
	require.NoError(t, err)

	_, err = api.Collect(c.Fetch(ctx, api.All()))
	assert.ErrorIs(t, err, api.ErrUnsupportedOperation)
	assert.Empty(t, pendingIDs(t, c))
}

func TestQueued_DurableQueueSurvivesController(t *testing.T) {
	ctx := context.Background()
	queue := retryqueue.NewInMemoryQueue[note](nil)
	denied := api.AdmissionFunc(func() bool { return false })

	first, err := NewCached[note](testutil.NewFakeSource(noteID), queue, denied, Options{})
	require.NoError(t, err)
	_, err = api.Drain(first.Create(ctx, note{ID: "kept"}))
	require.NoError(t, err)

	remote := testutil.NewFakeSource(noteID)
	second, err := NewQueued[note](remote, queue, Options{})
	require.NoError(t, err)
	n, err := second.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []note{{ID: "kept"}}, remote.Items())
}
