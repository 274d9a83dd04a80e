package service_test

import (
	"context"
	"sync"
	"time"

	kafka "github.com/studyhive/roompresence/internal/delivery/kafka"
	"github.com/studyhive/roompresence/internal/delivery/kafka/producer"
	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/internal/platform"
	repo "github.com/studyhive/roompresence/internal/repository/redis"
	pkgPush "github.com/studyhive/roompresence/pkg/push"
	redis "github.com/studyhive/roompresence/pkg/redis"
)

// fakeUserRepo mirrors the Redis repository semantics in memory: which
// operations stamp LastActiveAt and how the active index tracks in-room
// users.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*models.User
	index  map[string]int64
	getErr map[string]error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:  make(map[string]*models.User),
		index:  make(map[string]int64),
		getErr: make(map[string]error),
	}
}

func (f *fakeUserRepo) seed(u models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.users[u.UID] = &cp
	if u.InRoom() {
		f.index[u.UID] = u.LastActiveAt.Unix()
	}
}

func (f *fakeUserRepo) get(uid string) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[uid]
}

func (f *fakeUserRepo) inIndex(uid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.index[uid]
	return ok
}

func (f *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.UID]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *u
	f.users[u.UID] = &cp
	if cp.InRoom() {
		f.index[u.UID] = cp.LastActiveAt.Unix()
	}
	return nil
}

func (f *fakeUserRepo) Get(ctx context.Context, uid string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.getErr[uid]; ok {
		return nil, err
	}
	u, ok := f.users[uid]
	if !ok {
		return nil, redis.Nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) SetCurrentRoom(ctx context.Context, uid, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return redis.Nil
	}
	now := time.Now()
	u.CurrentRoomID = roomID
	u.LastActiveAt = now
	f.index[uid] = now.Unix()
	return nil
}

func (f *fakeUserRepo) ClearCurrentRoom(ctx context.Context, uid string) error {
	return f.clearRoom(uid, true)
}

func (f *fakeUserRepo) Evict(ctx context.Context, uid string) error {
	return f.clearRoom(uid, false)
}

func (f *fakeUserRepo) clearRoom(uid string, stampActive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return redis.Nil
	}
	u.CurrentRoomID = ""
	if stampActive {
		u.LastActiveAt = time.Now()
	}
	delete(f.index, uid)
	return nil
}

func (f *fakeUserRepo) TouchLastActive(ctx context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return redis.Nil
	}
	now := time.Now()
	u.LastActiveAt = now
	if u.InRoom() {
		f.index[uid] = now.Unix()
	}
	return nil
}

func (f *fakeUserRepo) FindStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var uids []string
	for uid, score := range f.index {
		if score <= cutoff.Unix() {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

func (f *fakeUserRepo) RemoveFromActiveIndex(ctx context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.index, uid)
	return nil
}

var _ repo.UserRepository = (*fakeUserRepo)(nil)

type fakeOccRepo struct {
	mu    sync.Mutex
	rooms map[string]map[string]models.Occupancy
}

func newFakeOccRepo() *fakeOccRepo {
	return &fakeOccRepo{rooms: make(map[string]map[string]models.Occupancy)}
}

func (f *fakeOccRepo) Add(ctx context.Context, occ models.Occupancy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[occ.RoomID]
	if !ok {
		room = make(map[string]models.Occupancy)
		f.rooms[occ.RoomID] = room
	}
	room[occ.UserID] = occ
	return nil
}

func (f *fakeOccRepo) Remove(ctx context.Context, roomID, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[roomID], uid)
	return nil
}

func (f *fakeOccRepo) Exists(ctx context.Context, roomID, uid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rooms[roomID][uid]
	return ok, nil
}

func (f *fakeOccRepo) ListRoom(ctx context.Context, roomID string) ([]models.Occupancy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	occs := make([]models.Occupancy, 0, len(f.rooms[roomID]))
	for _, occ := range f.rooms[roomID] {
		occs = append(occs, occ)
	}
	return occs, nil
}

var _ repo.OccupancyRepository = (*fakeOccRepo)(nil)

type fakeProducer struct {
	mu     sync.Mutex
	joined []kafka.RoomJoinedEvent
	left   []kafka.RoomLeftEvent
}

func (f *fakeProducer) PublishRoomJoined(ctx context.Context, event kafka.RoomJoinedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, event)
	return nil
}

func (f *fakeProducer) PublishRoomLeft(ctx context.Context, event kafka.RoomLeftEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, event)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) joinedEvents() []kafka.RoomJoinedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.RoomJoinedEvent(nil), f.joined...)
}

func (f *fakeProducer) leftEvents() []kafka.RoomLeftEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.RoomLeftEvent(nil), f.left...)
}

var _ producer.Producer = (*fakeProducer)(nil)

type fakePush struct {
	mu   sync.Mutex
	sent []pkgPush.Message
}

func (f *fakePush) Send(ctx context.Context, msg pkgPush.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakePush) messages() []pkgPush.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pkgPush.Message(nil), f.sent...)
}

var _ pkgPush.Sender = (*fakePush)(nil)

// immediateScheduler registers handlers without running them; heartbeat ticks
// are irrelevant to coordinator behavior beyond registration bookkeeping.
type immediateScheduler struct {
	mu    sync.Mutex
	tasks map[string]platform.TaskHandler
}

func newImmediateScheduler() *immediateScheduler {
	return &immediateScheduler{tasks: make(map[string]platform.TaskHandler)}
}

func (s *immediateScheduler) Register(taskID string, handler platform.TaskHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskID] = handler
	return nil
}

func (s *immediateScheduler) IsRegistered(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[taskID]
	return ok
}

func (s *immediateScheduler) Unregister(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

var _ platform.BackgroundScheduler = (*immediateScheduler)(nil)
