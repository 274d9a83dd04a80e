package heartbeat

import (
	"context"
	"fmt"

	"github.com/studyhive/roompresence/internal/platform"
	repo "github.com/studyhive/roompresence/internal/repository/redis"
	"github.com/studyhive/roompresence/pkg/logger"
)

// Heartbeat keeps LastActiveAt fresh for users believed to be in a room. Each
// registered user gets a recurring background job that stamps the timestamp;
// a failed tick is logged and skipped, the next tick tries again.
type Heartbeat struct {
	sched platform.BackgroundScheduler
	users repo.UserRepository
	l     logger.Logger
}

func New(sched platform.BackgroundScheduler, users repo.UserRepository, l logger.Logger) *Heartbeat {
	return &Heartbeat{
		sched: sched,
		users: users,
		l:     l,
	}
}

func taskID(uid string) string {
	return "presence-heartbeat:" + uid
}

// Register schedules the recurring liveness stamp for the user. Registering
// an already-registered user is a no-op.
func (h *Heartbeat) Register(ctx context.Context, uid string) error {
	id := taskID(uid)
	if h.sched.IsRegistered(id) {
		return nil
	}

	if err := h.sched.Register(id, func(tickCtx context.Context) error {
		return h.tick(tickCtx, uid)
	}); err != nil {
		return fmt.Errorf("failed to register heartbeat task: %w", err)
	}

	h.l.Infof(ctx, "Heartbeat registered - user_id: %s", uid)
	return nil
}

// Unregister cancels the recurring job. No-op if absent.
func (h *Heartbeat) Unregister(ctx context.Context, uid string) error {
	id := taskID(uid)
	if !h.sched.IsRegistered(id) {
		return nil
	}

	if err := h.sched.Unregister(id); err != nil {
		return fmt.Errorf("failed to unregister heartbeat task: %w", err)
	}

	h.l.Infof(ctx, "Heartbeat unregistered - user_id: %s", uid)
	return nil
}

// Registered reports whether the user currently has a heartbeat job.
func (h *Heartbeat) Registered(uid string) bool {
	return h.sched.IsRegistered(taskID(uid))
}

func (h *Heartbeat) tick(ctx context.Context, uid string) error {
	if err := h.users.TouchLastActive(ctx, uid); err != nil {
		// No retry queue; the next scheduled tick attempts again.
		h.l.Warnf(ctx, "Heartbeat write failed, skipping tick - user_id: %s, error: %v", uid, err)
		return err
	}

	h.l.Debugf(ctx, "Heartbeat stamped - user_id: %s", uid)
	return nil
}
