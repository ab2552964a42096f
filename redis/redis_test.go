package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/netguru/repolib"
	"github.com/netguru/repolib/pkg/api"
)

type note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func noteID(n note) string { return n.ID }

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func texts(t *testing.T, seq repolib.Sequence[note]) []string {
	t.Helper()
	items, err := repolib.Collect(seq)
	require.NoError(t, err)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Text)
	}
	return out
}

func TestEngineWithObserverAndBasicMetrics(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()

	remote := NewSource(client, "", noteID)
	_, err := repolib.Drain(remote.Create(ctx, note{ID: "1", Text: "first"}))
	require.NoError(t, err)
	_, err = repolib.Drain(remote.Create(ctx, note{ID: "2", Text: "second"}))
	require.NoError(t, err)

	metrics := &repolib.BasicMetrics{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	obs := repolib.NewCompositeObserver(repolib.NewLoggingObserver(logger), metrics)

	local := repolib.NewInMemorySource(noteID)
	eng, err := NewEngineWithObserver(client, local, noteID, obs)
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Fetch(ctx, repolib.All()))
	require.Equal(t, []string{"first", "second"}, texts(t, local.Fetch(ctx, repolib.All())))

	require.NoError(t, eng.Create(ctx, note{ID: "3", Text: "third"}))
	require.Equal(t, []string{"first", "second", "third"}, texts(t, remote.Fetch(ctx, repolib.All())))

	snap := metrics.Snapshot()
	require.Equal(t, int64(2), snap.RequestsStarted)
	require.Equal(t, int64(2), snap.RequestsCompleted)
	require.Zero(t, snap.RequestsFailed)
	require.Equal(t, int64(3), snap.EntitiesEmitted)
}

func TestEngine_ReplaysWritesAfterOutage(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()

	eng, err := NewEngine(client, repolib.NewInMemorySource(noteID), noteID)
	require.NoError(t, err)
	defer eng.Close()

	mr.Close()
	require.Error(t, eng.Create(ctx, note{ID: "1", Text: "while down"}))

	require.NoError(t, mr.Restart())
	require.NoError(t, eng.Create(ctx, note{ID: "2", Text: "after restart"}))

	remote := NewSource(client, "", noteID)
	require.Equal(t, []string{"while down", "after restart"}, texts(t, remote.Fetch(ctx, repolib.All())))
}

func TestQueue_SurvivesReopen(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()

	q := NewQueue[note](client, "repolib:test:", nil)

	added, err := q.Add(ctx, api.NewCreate(note{ID: "1", Text: "a"}))
	require.NoError(t, err)
	require.True(t, added)
	added, err = q.Add(ctx, api.NewUpdate(note{ID: "1", Text: "b"}))
	require.NoError(t, err)
	require.True(t, added)
	added, err = q.Add(ctx, api.NewCreate(note{ID: "1", Text: "a"}))
	require.NoError(t, err)
	require.False(t, added, "identical edit should coalesce")

	reopened := NewQueue[note](client, "repolib:test:", nil)
	pending, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "b", pending[0].Entity().Text)
	require.Equal(t, api.KindCreate, pending[1].Kind(), "the repeated create replays last")
}
