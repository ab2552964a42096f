package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netguru/repolib"
	"github.com/netguru/repolib/internal/testutil"
	"github.com/netguru/repolib/pkg/api"
)

type order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func orderID(o order) string { return o.ID }

// TestPostgresEngineWithObserverAndBasicMetrics drives the public
// constructors against a real PostgreSQL instance.
func TestPostgresEngineWithObserverAndBasicMetrics(t *testing.T) {
	dsn := testutil.GetPostgresDSN(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Start from an empty default table.
	_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS repolib_entities")
	require.NoError(t, err)

	metrics := &repolib.BasicMetrics{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	obs := repolib.NewCompositeObserver(repolib.NewLoggingObserver(logger), metrics)

	local := repolib.NewInMemorySource(orderID)
	eng, err := NewEngineWithObserver(db, local, orderID, obs)
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Create(ctx, order{ID: "o-1", Status: "new"}))
	require.NoError(t, eng.Update(ctx, order{ID: "o-1", Status: "paid"}))
	require.NoError(t, eng.Fetch(ctx, repolib.ByParams(map[string]any{"status": "paid"})))

	mirrored, err := repolib.Collect(local.Fetch(ctx, repolib.All()))
	require.NoError(t, err)
	require.Equal(t, []order{{ID: "o-1", Status: "paid"}}, mirrored)

	snap := metrics.Snapshot()
	require.Equal(t, int64(3), snap.RequestsStarted)
	require.Equal(t, int64(3), snap.RequestsCompleted)
	require.Zero(t, snap.RequestsFailed)
}

func TestPostgresQueue_SurvivesReopen(t *testing.T) {
	dsn := testutil.GetPostgresDSN(t)
	ctx := context.Background()

	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS retry_reopen_test")
	require.NoError(t, err)

	q, err := NewQueue[order](db, "retry_reopen_test", nil)
	require.NoError(t, err)
	_, err = q.Add(ctx, api.NewCreate(order{ID: "o-1", Status: "new"}))
	require.NoError(t, err)
	_, err = q.Add(ctx, api.NewDelete[order](repolib.ByID("o-2")))
	require.NoError(t, err)

	reopened, err := NewQueue[order](db, "retry_reopen_test", nil)
	require.NoError(t, err)
	pending, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, api.KindCreate, pending[0].Kind())
	require.Equal(t, api.KindDelete, pending[1].Kind())
	require.Equal(t, "id:o-2", pending[1].Query().Key())
}
