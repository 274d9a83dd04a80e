package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyhive/roompresence/config"
	kafka "github.com/studyhive/roompresence/internal/delivery/kafka"
	"github.com/studyhive/roompresence/internal/delivery/kafka/producer"
	"github.com/studyhive/roompresence/internal/geofence"
	"github.com/studyhive/roompresence/internal/heartbeat"
	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/internal/platform"
	repo "github.com/studyhive/roompresence/internal/repository/redis"
	"github.com/studyhive/roompresence/pkg/logger"
	pkgPush "github.com/studyhive/roompresence/pkg/push"
	redis "github.com/studyhive/roompresence/pkg/redis"
)

type PresenceService interface {
	RegisterUser(ctx context.Context, u models.User) error
	Join(ctx context.Context, uid, roomID string) error
	Leave(ctx context.Context, uid string) error
	Status(ctx context.Context, uid string) (*PresenceStatus, error)
	RoomOccupants(ctx context.Context, roomID string) ([]models.Occupancy, error)

	// Exit watcher lifecycle
	Start(ctx context.Context) error
	Stop() error
}

// coordinator is the per-user membership state machine. A user is NotInRoom,
// PendingJoin (at most one outstanding attempt) or InRoom; the store's
// CurrentRoomID is the authoritative record, the in-process maps only track
// pending attempts and which in-room users this process must evict on a
// geofence exit.
type coordinator struct {
	users repo.UserRepository
	occs  repo.OccupancyRepository
	mon   *geofence.Monitor
	hb    *heartbeat.Heartbeat
	prod  producer.Producer
	push  pkgPush.Sender
	cfg   config.PresenceConfig
	home  models.Region
	l     logger.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	inRoom  map[string]string

	runMu     sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewPresenceService(
	users repo.UserRepository,
	occs repo.OccupancyRepository,
	mon *geofence.Monitor,
	hb *heartbeat.Heartbeat,
	prod producer.Producer,
	push pkgPush.Sender,
	cfg config.PresenceConfig,
	home models.Region,
	l logger.Logger,
) PresenceService {
	return &coordinator{
		users:   users,
		occs:    occs,
		mon:     mon,
		hb:      hb,
		prod:    prod,
		push:    push,
		cfg:     cfg,
		home:    home,
		l:       l,
		pending: make(map[string]struct{}),
		inRoom:  make(map[string]string),
	}
}

// RegisterUser provisions the profile document the coordinator mutates.
// Membership fields always start empty; signup never puts a user in a room,
// and re-registering an existing user never touches their membership.
func (c *coordinator) RegisterUser(ctx context.Context, u models.User) error {
	u.CurrentRoomID = ""
	if err := c.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return ErrUserExists
		}
		return fmt.Errorf("%w: user document: %v", ErrWriteFailed, err)
	}

	c.l.Infof(ctx, "User registered - user_id: %s", u.UID)
	return nil
}

// Join gates room entry behind a live geofence confirmation raced against
// the configured deadline.
func (c *coordinator) Join(ctx context.Context, uid, roomID string) error {
	c.mu.Lock()
	if _, ok := c.pending[uid]; ok {
		c.mu.Unlock()
		return ErrAlreadyJoining
	}
	if _, ok := c.inRoom[uid]; ok {
		c.mu.Unlock()
		return ErrAlreadyInRoom
	}
	c.pending[uid] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, uid)
		c.mu.Unlock()
	}()

	u, err := c.users.Get(ctx, uid)
	if err != nil {
		if err == redis.Nil {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	// A store pointer at the same room means a duplicate tap; a pointer at
	// a different room is leftover state from a crash and is cleaned up
	// after the geofence confirms.
	if u.CurrentRoomID == roomID {
		return ErrAlreadyInRoom
	}

	if err := c.mon.Arm(ctx, c.home); err != nil {
		if errors.Is(err, platform.ErrPermissionDenied) {
			return ErrPermissionDenied
		}
		return fmt.Errorf("failed to arm geofence: %w", err)
	}

	side, err := c.awaitSide(ctx)
	if err != nil {
		c.l.Warnf(ctx, "Join attempt did not confirm - user_id: %s, room_id: %s, error: %v", uid, roomID, err)
		return err
	}

	if side == models.SideOutside {
		// Monitor stays armed; only an explicit or involuntary leave disarms.
		return ErrOutsideRegion
	}

	return c.performJoin(ctx, u, roomID)
}

// awaitSide races the geofence confirmation against the join deadline. Both
// are resolved against one cancellable deadline; whichever settles first
// wins, and a side confirmed on the same tick as the deadline beats the
// timeout.
func (c *coordinator) awaitSide(ctx context.Context) (models.GeofenceSide, error) {
	if side := c.mon.Side(); side != models.SideUnknown {
		return side, nil
	}

	raceCtx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.GeofencePoll)
	defer ticker.Stop()

	for {
		select {
		case <-raceCtx.Done():
			if side := c.mon.Side(); side != models.SideUnknown {
				return side, nil
			}
			if err := ctx.Err(); err != nil {
				// Caller cancelled; the attempt is abandoned but the
				// monitor stays armed.
				return models.SideUnknown, err
			}
			return models.SideUnknown, ErrJoinTimeout
		case <-ticker.C:
			if side := c.mon.Side(); side != models.SideUnknown {
				return side, nil
			}
		}
	}
}

func (c *coordinator) performJoin(ctx context.Context, u *models.User, roomID string) error {
	now := time.Now()

	if err := c.occs.Add(ctx, models.Occupancy{
		RoomID:   roomID,
		UserID:   u.UID,
		JoinedAt: now,
	}); err != nil {
		return fmt.Errorf("%w: occupancy record: %v", ErrWriteFailed, err)
	}

	// Best-effort cleanup of a stale pointer at a different room.
	if u.CurrentRoomID != "" && u.CurrentRoomID != roomID {
		if err := c.occs.Remove(ctx, u.CurrentRoomID, u.UID); err != nil {
			c.l.Warnf(ctx, "Failed to remove stale occupancy - user_id: %s, room_id: %s, error: %v",
				u.UID, u.CurrentRoomID, err)
		}
	}

	if err := c.users.SetCurrentRoom(ctx, u.UID, roomID); err != nil {
		return fmt.Errorf("%w: current room pointer: %v", ErrWriteFailed, err)
	}

	if err := c.hb.Register(ctx, u.UID); err != nil {
		// The synchronous LastActiveAt stamp above covers the gap; the
		// reaper handles a user whose heartbeat never starts.
		c.l.Errorf(ctx, "Failed to register heartbeat - user_id: %s, error: %v", u.UID, err)
	}

	c.mu.Lock()
	c.inRoom[u.UID] = roomID
	c.mu.Unlock()

	if c.prod != nil {
		if err := c.prod.PublishRoomJoined(ctx, kafka.RoomJoinedEvent{
			EventID:  uuid.New().String(),
			UserID:   u.UID,
			RoomID:   roomID,
			JoinedAt: now,
		}); err != nil {
			c.l.Errorf(ctx, "Failed to publish room joined event - user_id: %s, error: %v", u.UID, err)
		}
	}

	c.l.Infof(ctx, "User joined room - user_id: %s, room_id: %s", u.UID, roomID)

	return nil
}

// Leave is the voluntary transition out of a room. Leaving while not in any
// room is a no-op.
func (c *coordinator) Leave(ctx context.Context, uid string) error {
	return c.leave(ctx, uid, kafka.LeaveReasonUserLeft)
}

func (c *coordinator) leave(ctx context.Context, uid, reason string) error {
	u, err := c.users.Get(ctx, uid)
	if err != nil {
		if err == redis.Nil {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !u.InRoom() {
		c.mu.Lock()
		delete(c.inRoom, uid)
		c.mu.Unlock()
		return nil
	}

	roomID := u.CurrentRoomID

	if err := c.occs.Remove(ctx, roomID, uid); err != nil {
		return fmt.Errorf("%w: occupancy record: %v", ErrWriteFailed, err)
	}

	if err := c.users.ClearCurrentRoom(ctx, uid); err != nil {
		return fmt.Errorf("%w: current room pointer: %v", ErrWriteFailed, err)
	}

	if err := c.mon.Disarm(ctx); err != nil {
		c.l.Warnf(ctx, "Failed to disarm geofence on leave: %v", err)
	}
	if err := c.hb.Unregister(ctx, uid); err != nil {
		c.l.Warnf(ctx, "Failed to unregister heartbeat - user_id: %s, error: %v", uid, err)
	}

	c.mu.Lock()
	delete(c.inRoom, uid)
	c.mu.Unlock()

	if c.prod != nil {
		if err := c.prod.PublishRoomLeft(ctx, kafka.RoomLeftEvent{
			EventID: uuid.New().String(),
			UserID:  uid,
			RoomID:  roomID,
			Reason:  reason,
			LeftAt:  time.Now(),
		}); err != nil {
			c.l.Errorf(ctx, "Failed to publish room left event - user_id: %s, error: %v", uid, err)
		}
	}

	if reason == kafka.LeaveReasonLeftArea {
		c.notifyLeftArea(ctx, u)
	}

	c.l.Infof(ctx, "User left room - user_id: %s, room_id: %s, reason: %s", uid, roomID, reason)

	return nil
}

func (c *coordinator) notifyLeftArea(ctx context.Context, u *models.User) {
	if c.push == nil || u.PushToken == "" {
		return
	}

	if err := c.push.Send(ctx, pkgPush.Message{
		Token: u.PushToken,
		Title: "Too far from the " + c.home.Identifier,
		Body:  "Looks like you left the " + c.home.Identifier + ", now leaving room.",
	}); err != nil {
		c.l.Warnf(ctx, "Failed to send leave notice - user_id: %s, error: %v", u.UID, err)
	}
}

// Status reads the user's membership and reconciles the occupancy record
// against the authoritative CurrentRoomID pointer.
func (c *coordinator) Status(ctx context.Context, uid string) (*PresenceStatus, error) {
	u, err := c.users.Get(ctx, uid)
	if err != nil {
		if err == redis.Nil {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if u.InRoom() {
		exists, err := c.occs.Exists(ctx, u.CurrentRoomID, uid)
		if err == nil && !exists {
			// CurrentRoomID is authoritative; repair the record a crash
			// between the join's writes may have lost.
			c.l.Warnf(ctx, "Reconciling missing occupancy record - user_id: %s, room_id: %s", uid, u.CurrentRoomID)
			if err := c.occs.Add(ctx, models.Occupancy{
				RoomID:   u.CurrentRoomID,
				UserID:   uid,
				JoinedAt: u.LastActiveAt,
			}); err != nil {
				c.l.Errorf(ctx, "Failed to reconcile occupancy - user_id: %s, error: %v", uid, err)
			}
		}
	}

	c.mu.Lock()
	_, joinPending := c.pending[uid]
	c.mu.Unlock()

	return &PresenceStatus{
		UserID:       uid,
		RoomID:       u.CurrentRoomID,
		JoinPending:  joinPending,
		LastActiveAt: u.LastActiveAt,
		GeofenceSide: c.mon.Side().String(),
	}, nil
}

func (c *coordinator) RoomOccupants(ctx context.Context, roomID string) ([]models.Occupancy, error) {
	occs, err := c.occs.ListRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupants: %w", err)
	}

	return occs, nil
}

// Start launches the exit watcher: a geofence Exit event forces an
// involuntary leave for every user this process tracks as in-room.
func (c *coordinator) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.isRunning {
		return errors.New("exit watcher is already running")
	}

	c.isRunning = true
	c.stopCh = make(chan struct{})

	events := c.mon.Subscribe()

	c.wg.Add(1)
	go c.watchExits(ctx, events)

	c.l.Info(ctx, "Exit watcher started")
	return nil
}

func (c *coordinator) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if !c.isRunning {
		return errors.New("exit watcher is not running")
	}

	close(c.stopCh)
	c.wg.Wait()
	c.isRunning = false

	return nil
}

func (c *coordinator) watchExits(ctx context.Context, events chan models.GeofenceEvent) {
	defer c.wg.Done()
	defer c.mon.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type != models.GeofenceExit {
				continue
			}
			c.handleExit(ctx)
		}
	}
}

func (c *coordinator) handleExit(ctx context.Context) {
	c.mu.Lock()
	uids := make([]string, 0, len(c.inRoom))
	for uid := range c.inRoom {
		uids = append(uids, uid)
	}
	c.mu.Unlock()

	for _, uid := range uids {
		if err := c.leave(ctx, uid, kafka.LeaveReasonLeftArea); err != nil {
			c.l.Errorf(ctx, "Involuntary leave failed - user_id: %s, error: %v", uid, err)
		}
	}
}
