package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netguru/repolib/internal/testutil"
	"github.com/netguru/repolib/pkg/api"
)

type item struct{ ID string }

func itemID(i item) string { return i.ID }

var errOffline = errors.New("offline")

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Hour})
	require.True(t, b.IsOperationPermitted())

	b.Observe(errOffline)
	assert.True(t, b.IsOperationPermitted())

	b.Observe(errOffline)
	assert.False(t, b.IsOperationPermitted())
	assert.Equal(t, "open", b.State())
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := NewBreaker(BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Hour})

	b.Observe(errOffline)
	b.Observe(nil)
	b.Observe(errOffline)
	assert.True(t, b.IsOperationPermitted())
}

func TestBreaker_NotFoundCountsAsReachable(t *testing.T) {
	b := NewBreaker(BreakerConfig{ConsecutiveFailures: 1, Timeout: time.Hour})

	b.Observe(api.ErrNotFound)
	b.Observe(api.ErrUnsupportedOperation)
	assert.True(t, b.IsOperationPermitted())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := NewBreaker(BreakerConfig{ConsecutiveFailures: 1, Timeout: 20 * time.Millisecond})

	b.Observe(errOffline)
	require.False(t, b.IsOperationPermitted())

	require.Eventually(t, b.IsOperationPermitted, time.Second, 5*time.Millisecond)
	assert.Equal(t, "half-open", b.State())

	b.Observe(nil)
	assert.Equal(t, "closed", b.State())
}

func TestGuard_ReportsOutcomes(t *testing.T) {
	ctx := context.Background()
	remote := testutil.NewFakeSource(itemID, item{ID: "a"})
	b := NewBreaker(BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Hour})
	guarded := Guard[item](remote, b)

	got, err := api.Collect(guarded.Fetch(ctx, api.All()))
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "a"}}, got)

	remote.FailNext(testutil.MethodCreate, errOffline)
	remote.FailNext(testutil.MethodCreate, errOffline)
	_, err = api.Collect(guarded.Create(ctx, item{ID: "b"}))
	assert.ErrorIs(t, err, errOffline)
	assert.True(t, b.IsOperationPermitted())

	_, err = api.Collect(guarded.Create(ctx, item{ID: "b"}))
	assert.ErrorIs(t, err, errOffline)
	assert.False(t, b.IsOperationPermitted())
}
