package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/studyhive/roompresence/config"
	kafka "github.com/studyhive/roompresence/internal/delivery/kafka"
	"github.com/studyhive/roompresence/internal/delivery/kafka/producer"
	repo "github.com/studyhive/roompresence/internal/repository/redis"
	"github.com/studyhive/roompresence/pkg/logger"
	redis "github.com/studyhive/roompresence/pkg/redis"
)

// Reaper force-removes occupants whose heartbeat has gone silent past the
// staleness threshold. It runs out of process from the coordinator, mutates
// the same documents directly, and relies on idempotent deletes plus the
// monotonic LastActiveAt to stay safe without locks.
type Reaper struct {
	users repo.UserRepository
	occs  repo.OccupancyRepository
	prod  producer.Producer
	l     logger.Logger

	threshold   time.Duration
	interval    time.Duration
	parallelism int

	mu             sync.RWMutex
	isRunning      bool
	startedAt      time.Time
	lastSweep      time.Time
	totalReclaimed int64
	totalSkipped   int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewReaper(
	users repo.UserRepository,
	occs repo.OccupancyRepository,
	prod producer.Producer,
	cfg config.PresenceConfig,
	l logger.Logger,
) *Reaper {
	parallelism := cfg.SweepParallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	return &Reaper{
		users:       users,
		occs:        occs,
		prod:        prod,
		l:           l,
		threshold:   cfg.StaleThreshold,
		interval:    cfg.SweepInterval,
		parallelism: parallelism,
	}
}

// Sweep reclaims every user whose LastActiveAt is older than the threshold.
// Each user is handled independently; one failed reclamation is logged and
// counted, never aborts the rest.
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.threshold)

	uids, err := r.users.FindStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to query stale users: %w", err)
	}

	if len(uids) == 0 {
		r.l.Debug(ctx, "No stale occupants to reclaim")
		r.recordSweep(0, 0)
		return nil
	}

	r.l.Infof(ctx, "Reclaiming stale occupants - count: %d, cutoff: %s", len(uids), cutoff.Format(time.RFC3339))

	var (
		countMu   sync.Mutex
		reclaimed int64
		skipped   int64
	)

	g := new(errgroup.Group)
	g.SetLimit(r.parallelism)

	for _, uid := range uids {
		uid := uid
		g.Go(func() error {
			if err := r.reapUser(ctx, uid); err != nil {
				r.l.Warnf(ctx, "Skipping user, reclamation failed - user_id: %s, error: %v", uid, err)
				countMu.Lock()
				skipped++
				countMu.Unlock()
				return nil
			}

			countMu.Lock()
			reclaimed++
			countMu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	r.recordSweep(reclaimed, skipped)

	r.l.Infof(ctx, "Sweep completed - reclaimed: %d, skipped: %d", reclaimed, skipped)

	return nil
}

func (r *Reaper) reapUser(ctx context.Context, uid string) error {
	u, err := r.users.Get(ctx, uid)
	if err != nil {
		if err == redis.Nil {
			// Index entry without a user document; drop the entry.
			return r.users.RemoveFromActiveIndex(ctx, uid)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !u.InRoom() {
		r.l.Warnf(ctx, "Skipping user with no room pointer - user_id: %s", uid)
		return r.users.RemoveFromActiveIndex(ctx, uid)
	}

	roomID := u.CurrentRoomID

	// Absence is not an error; a racing leave may already have deleted it.
	if err := r.occs.Remove(ctx, roomID, uid); err != nil {
		return fmt.Errorf("failed to remove occupancy: %w", err)
	}

	// LastActiveAt stays untouched; it already reflects the staleness that
	// triggered the removal.
	if err := r.users.Evict(ctx, uid); err != nil {
		return fmt.Errorf("failed to clear room pointer: %w", err)
	}

	if r.prod != nil {
		if err := r.prod.PublishRoomLeft(ctx, kafka.RoomLeftEvent{
			EventID: uuid.New().String(),
			UserID:  uid,
			RoomID:  roomID,
			Reason:  kafka.LeaveReasonEvicted,
			LeftAt:  time.Now(),
		}); err != nil {
			r.l.Errorf(ctx, "Failed to publish eviction event - user_id: %s, error: %v", uid, err)
		}
	}

	r.l.Infof(ctx, "Evicted stale occupant - user_id: %s, room_id: %s, last_active_at: %s",
		uid, roomID, u.LastActiveAt.Format(time.RFC3339))

	return nil
}

func (r *Reaper) recordSweep(reclaimed, skipped int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSweep = time.Now()
	r.totalReclaimed += reclaimed
	r.totalSkipped += skipped
}

// Start runs an immediate sweep, then sweeps on the configured wall-clock
// interval until Stop or context cancellation.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return errors.New("reaper is already running")
	}
	r.isRunning = true
	r.startedAt = time.Now()
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.l.Infof(ctx, "Reaper started - threshold: %s, interval: %s", r.threshold, r.interval)

	r.wg.Add(1)
	go r.sweepLoop(ctx)

	return nil
}

func (r *Reaper) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return errors.New("reaper is not running")
	}
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	r.isRunning = false
	r.mu.Unlock()

	return nil
}

func (r *Reaper) sweepLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.Sweep(ctx); err != nil {
		r.l.Errorf(ctx, "Sweep failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				// Errors never crash the process; the next scheduled
				// sweep recovers.
				r.l.Errorf(ctx, "Sweep failed: %v", err)
			}
		}
	}
}

func (r *Reaper) Status() ReaperStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ReaperStatus{
		IsRunning:      r.isRunning,
		StartedAt:      r.startedAt,
		LastSweep:      r.lastSweep,
		TotalReclaimed: r.totalReclaimed,
		TotalSkipped:   r.totalSkipped,
	}
}
