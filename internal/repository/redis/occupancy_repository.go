package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/pkg/logger"
)

type OccupancyRepository interface {
	Add(ctx context.Context, occ models.Occupancy) error
	// Remove deletes the (room, user) record. Absence is not an error, so
	// double-deletes from racing leave and reap are harmless.
	Remove(ctx context.Context, roomID, uid string) error
	Exists(ctx context.Context, roomID, uid string) (bool, error)
	ListRoom(ctx context.Context, roomID string) ([]models.Occupancy, error)
}

type redisOccupancyRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisOccupancyRepository(cli *redis.Client, l logger.Logger) OccupancyRepository {
	return &redisOccupancyRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisOccupancyRepository) Add(ctx context.Context, occ models.Occupancy) error {
	data, err := json.Marshal(occ)
	if err != nil {
		return fmt.Errorf("failed to marshal occupancy: %w", err)
	}

	if err := r.cli.HSet(ctx, r.occupantsKey(occ.RoomID), occ.UserID, data).Err(); err != nil {
		r.l.Errorf(ctx, "redisOccupancyRepository.Add: %v", err)
		return err
	}

	r.l.Debugf(ctx, "Occupancy added - room_id: %s, user_id: %s", occ.RoomID, occ.UserID)

	return nil
}

func (r *redisOccupancyRepository) Remove(ctx context.Context, roomID, uid string) error {
	removed, err := r.cli.HDel(ctx, r.occupantsKey(roomID), uid).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisOccupancyRepository.Remove: %v", err)
		return err
	}

	if removed > 0 {
		r.l.Debugf(ctx, "Occupancy removed - room_id: %s, user_id: %s", roomID, uid)
	}

	return nil
}

func (r *redisOccupancyRepository) Exists(ctx context.Context, roomID, uid string) (bool, error) {
	exists, err := r.cli.HExists(ctx, r.occupantsKey(roomID), uid).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisOccupancyRepository.Exists: %v", err)
		return false, err
	}

	return exists, nil
}

func (r *redisOccupancyRepository) ListRoom(ctx context.Context, roomID string) ([]models.Occupancy, error) {
	entries, err := r.cli.HGetAll(ctx, r.occupantsKey(roomID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisOccupancyRepository.ListRoom: %v", err)
		return nil, err
	}

	occs := make([]models.Occupancy, 0, len(entries))
	for uid, raw := range entries {
		var occ models.Occupancy
		if err := json.Unmarshal([]byte(raw), &occ); err != nil {
			r.l.Warnf(ctx, "Skipping malformed occupancy record - room_id: %s, user_id: %s", roomID, uid)
			continue
		}
		occs = append(occs, occ)
	}

	return occs, nil
}

func (r *redisOccupancyRepository) occupantsKey(roomID string) string {
	return fmt.Sprintf("roompresence:room:%s:occupants", roomID)
}
