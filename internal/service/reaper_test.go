package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kafka "github.com/studyhive/roompresence/internal/delivery/kafka"
	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/internal/service"
	"github.com/studyhive/roompresence/pkg/logger"
)

func newReaperHarness(t *testing.T) (*service.Reaper, *fakeUserRepo, *fakeOccRepo, *fakeProducer) {
	t.Helper()

	users := newFakeUserRepo()
	occs := newFakeOccRepo()
	prod := &fakeProducer{}
	cfg := testPresenceConfig()
	cfg.SweepInterval = 50 * time.Millisecond

	r := service.NewReaper(users, occs, prod, cfg, logger.InitializeTestZapLogger())
	return r, users, occs, prod
}

func TestSweepEvictsStaleOccupants(t *testing.T) {
	ctx := context.Background()
	r, users, occs, prod := newReaperHarness(t)

	staleAt := time.Now().Add(-2 * time.Hour)
	users.seed(models.User{UID: "stale", CurrentRoomID: "room-1", LastActiveAt: staleAt})
	users.seed(models.User{UID: "fresh", CurrentRoomID: "room-1", LastActiveAt: time.Now()})
	require.NoError(t, occs.Add(ctx, models.Occupancy{RoomID: "room-1", UserID: "stale", JoinedAt: staleAt}))
	require.NoError(t, occs.Add(ctx, models.Occupancy{RoomID: "room-1", UserID: "fresh", JoinedAt: time.Now()}))

	require.NoError(t, r.Sweep(ctx))

	exists, err := occs.Exists(ctx, "room-1", "stale")
	require.NoError(t, err)
	require.False(t, exists)

	evicted := users.get("stale")
	require.Empty(t, evicted.CurrentRoomID)
	// Eviction must not freshen the timestamp that justified it.
	require.True(t, evicted.LastActiveAt.Equal(staleAt))

	untouched := users.get("fresh")
	require.Equal(t, "room-1", untouched.CurrentRoomID)
	stillThere, err := occs.Exists(ctx, "room-1", "fresh")
	require.NoError(t, err)
	require.True(t, stillThere)

	left := prod.leftEvents()
	require.Len(t, left, 1)
	require.Equal(t, "stale", left[0].UserID)
	require.Equal(t, kafka.LeaveReasonEvicted, left[0].Reason)
}

func TestSweepIsolatesPerUserFailures(t *testing.T) {
	ctx := context.Background()
	r, users, occs, _ := newReaperHarness(t)

	staleAt := time.Now().Add(-2 * time.Hour)
	users.seed(models.User{UID: "broken", CurrentRoomID: "room-1", LastActiveAt: staleAt})
	users.seed(models.User{UID: "stale", CurrentRoomID: "room-1", LastActiveAt: staleAt})
	require.NoError(t, occs.Add(ctx, models.Occupancy{RoomID: "room-1", UserID: "stale", JoinedAt: staleAt}))

	users.getErr["broken"] = errors.New("redis timeout")

	require.NoError(t, r.Sweep(ctx))

	// The failing user was skipped, the rest of the sweep finished.
	require.Empty(t, users.get("stale").CurrentRoomID)

	status := r.Status()
	require.Equal(t, int64(1), status.TotalReclaimed)
	require.Equal(t, int64(1), status.TotalSkipped)
}

func TestSweepPrunesOrphanIndexEntries(t *testing.T) {
	ctx := context.Background()
	r, users, _, prod := newReaperHarness(t)

	// Index entry without a user document.
	users.index["ghost"] = time.Now().Add(-2 * time.Hour).Unix()

	// User document without a room pointer.
	users.seed(models.User{UID: "homeless", LastActiveAt: time.Now().Add(-2 * time.Hour)})
	users.index["homeless"] = time.Now().Add(-2 * time.Hour).Unix()

	require.NoError(t, r.Sweep(ctx))

	require.False(t, users.inIndex("ghost"))
	require.False(t, users.inIndex("homeless"))
	require.Empty(t, prod.leftEvents())
}

func TestSweepDoesNotTouchFreshIndex(t *testing.T) {
	ctx := context.Background()
	r, users, occs, prod := newReaperHarness(t)

	users.seed(models.User{UID: "fresh", CurrentRoomID: "room-1", LastActiveAt: time.Now()})
	require.NoError(t, occs.Add(ctx, models.Occupancy{RoomID: "room-1", UserID: "fresh", JoinedAt: time.Now()}))

	require.NoError(t, r.Sweep(ctx))

	require.True(t, users.inIndex("fresh"))
	require.Empty(t, prod.leftEvents())
}

func TestReaperLifecycle(t *testing.T) {
	ctx := context.Background()
	r, users, occs, _ := newReaperHarness(t)

	staleAt := time.Now().Add(-2 * time.Hour)
	users.seed(models.User{UID: "stale", CurrentRoomID: "room-1", LastActiveAt: staleAt})
	require.NoError(t, occs.Add(ctx, models.Occupancy{RoomID: "room-1", UserID: "stale", JoinedAt: staleAt}))

	require.NoError(t, r.Start(ctx))
	require.Error(t, r.Start(ctx))

	// The initial sweep runs immediately on start.
	require.Eventually(t, func() bool {
		return r.Status().TotalReclaimed == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Stop())
	require.Error(t, r.Stop())
	require.False(t, r.Status().IsRunning)
}
