package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/pkg/logger"
)

// ErrAlreadyExists is returned by Create when the user document is already
// present. Creation never overwrites: the document carries membership state
// owned by the coordinator.
var ErrAlreadyExists = errors.New("already exists")

type UserRepository interface {
	// Create writes the user document only if absent.
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, uid string) (*models.User, error)

	// SetCurrentRoom points the user at a room and stamps LastActiveAt.
	SetCurrentRoom(ctx context.Context, uid, roomID string) error
	// ClearCurrentRoom empties the room pointer and stamps LastActiveAt
	// (voluntary and involuntary leave).
	ClearCurrentRoom(ctx context.Context, uid string) error
	// Evict empties the room pointer without touching LastActiveAt; the
	// stale timestamp is what justified the eviction.
	Evict(ctx context.Context, uid string) error
	// TouchLastActive stamps LastActiveAt to now (heartbeat tick).
	TouchLastActive(ctx context.Context, uid string) error

	// FindStale returns the ids of in-room users whose LastActiveAt is
	// older than the cutoff.
	FindStale(ctx context.Context, cutoff time.Time) ([]string, error)
	// RemoveFromActiveIndex drops a user from the stale-scan index without
	// touching the user document.
	RemoveFromActiveIndex(ctx context.Context, uid string) error
}

type redisUserRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisUserRepository(cli *redis.Client, l logger.Logger) UserRepository {
	return &redisUserRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisUserRepository) Create(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	ok, err := r.cli.SetNX(ctx, r.userKey(u.UID), data, 0).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisUserRepository.Create: %v", err)
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}

	return nil
}

func (r *redisUserRepository) Get(ctx context.Context, uid string) (*models.User, error) {
	data, err := r.cli.Get(ctx, r.userKey(uid)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.l.Errorf(ctx, "redisUserRepository.Get: %v", err)
		}
		return nil, err
	}

	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		r.l.Errorf(ctx, "redisUserRepository.Get: %v", err)
		return nil, err
	}

	return &u, nil
}

func (r *redisUserRepository) SetCurrentRoom(ctx context.Context, uid, roomID string) error {
	u, err := r.Get(ctx, uid)
	if err != nil {
		return err
	}

	now := time.Now()
	u.CurrentRoomID = roomID
	u.LastActiveAt = now

	data, err := json.Marshal(u)
	if err != nil {
		r.l.Errorf(ctx, "redisUserRepository.SetCurrentRoom: %v", err)
		return err
	}

	pipe := r.cli.Pipeline()
	pipe.Set(ctx, r.userKey(uid), data, 0)
	pipe.ZAdd(ctx, r.activeIndexKey(), redis.Z{
		Score:  float64(now.Unix()),
		Member: uid,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisUserRepository.SetCurrentRoom: %v", err)
		return err
	}

	r.l.Debugf(ctx, "Current room set - user_id: %s, room_id: %s", uid, roomID)

	return nil
}

func (r *redisUserRepository) ClearCurrentRoom(ctx context.Context, uid string) error {
	return r.clearRoom(ctx, uid, true)
}

func (r *redisUserRepository) Evict(ctx context.Context, uid string) error {
	return r.clearRoom(ctx, uid, false)
}

func (r *redisUserRepository) clearRoom(ctx context.Context, uid string, stampActive bool) error {
	u, err := r.Get(ctx, uid)
	if err != nil {
		return err
	}

	u.CurrentRoomID = ""
	if stampActive {
		u.LastActiveAt = time.Now()
	}

	data, err := json.Marshal(u)
	if err != nil {
		r.l.Errorf(ctx, "redisUserRepository.clearRoom: %v", err)
		return err
	}

	pipe := r.cli.Pipeline()
	pipe.Set(ctx, r.userKey(uid), data, 0)
	pipe.ZRem(ctx, r.activeIndexKey(), uid)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisUserRepository.clearRoom: %v", err)
		return err
	}

	r.l.Debugf(ctx, "Current room cleared - user_id: %s", uid)

	return nil
}

func (r *redisUserRepository) TouchLastActive(ctx context.Context, uid string) error {
	u, err := r.Get(ctx, uid)
	if err != nil {
		return err
	}

	now := time.Now()
	u.LastActiveAt = now

	data, err := json.Marshal(u)
	if err != nil {
		r.l.Errorf(ctx, "redisUserRepository.TouchLastActive: %v", err)
		return err
	}

	pipe := r.cli.Pipeline()
	pipe.Set(ctx, r.userKey(uid), data, 0)
	if u.InRoom() {
		pipe.ZAdd(ctx, r.activeIndexKey(), redis.Z{
			Score:  float64(now.Unix()),
			Member: uid,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisUserRepository.TouchLastActive: %v", err)
		return err
	}

	return nil
}

func (r *redisUserRepository) FindStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	uids, err := r.cli.ZRangeByScore(ctx, r.activeIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisUserRepository.FindStale: %v", err)
		return nil, err
	}

	return uids, nil
}

func (r *redisUserRepository) RemoveFromActiveIndex(ctx context.Context, uid string) error {
	if err := r.cli.ZRem(ctx, r.activeIndexKey(), uid).Err(); err != nil {
		r.l.Errorf(ctx, "redisUserRepository.RemoveFromActiveIndex: %v", err)
		return err
	}

	return nil
}

func (r *redisUserRepository) userKey(uid string) string {
	return fmt.Sprintf("roompresence:user:%s", uid)
}

func (r *redisUserRepository) activeIndexKey() string {
	return "roompresence:active_users"
}
