package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	delivery "github.com/studyhive/roompresence/internal/delivery/http"
	"github.com/studyhive/roompresence/internal/geofence"
	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/internal/platform"
	"github.com/studyhive/roompresence/internal/service"
	"github.com/studyhive/roompresence/pkg/logger"
)

type stubPresenceService struct {
	registerErr error
	joinErr     error
	leaveErr    error
	statusErr   error

	joinedUser string
	joinedRoom string
	leftUser   string

	occupants  []models.Occupancy
	registered *models.User
}

func (s *stubPresenceService) RegisterUser(ctx context.Context, u models.User) error {
	if s.registerErr != nil {
		return s.registerErr
	}
	s.registered = &u
	return nil
}

func (s *stubPresenceService) Join(ctx context.Context, uid, roomID string) error {
	s.joinedUser = uid
	s.joinedRoom = roomID
	return s.joinErr
}

func (s *stubPresenceService) Leave(ctx context.Context, uid string) error {
	s.leftUser = uid
	return s.leaveErr
}

func (s *stubPresenceService) Status(ctx context.Context, uid string) (*service.PresenceStatus, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &service.PresenceStatus{
		UserID:       uid,
		RoomID:       "room-1",
		LastActiveAt: time.Now(),
		GeofenceSide: "inside",
	}, nil
}

func (s *stubPresenceService) RoomOccupants(ctx context.Context, roomID string) ([]models.Occupancy, error) {
	return s.occupants, nil
}

func (s *stubPresenceService) Start(ctx context.Context) error { return nil }
func (s *stubPresenceService) Stop() error                     { return nil }

var _ service.PresenceService = (*stubPresenceService)(nil)

func setupHandler(stub *stubPresenceService) (http.Handler, *geofence.Monitor) {
	l := logger.InitializeTestZapLogger()
	mon := geofence.NewMonitor(platform.NewLocalRegionMonitor(true), l)
	h := delivery.NewHTTPHandler(stub, mon, l)
	return h.Routes(), mon
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{})

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateUser(t *testing.T) {
	stub := &stubPresenceService{}
	router, _ := setupHandler(stub)

	w := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{
		"user_id":    "u1",
		"name":       "Alice",
		"push_token": "tok-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, stub.registered)
	require.Equal(t, "u1", stub.registered.UID)
	require.Equal(t, "tok-1", stub.registered.PushToken)
}

func TestCreateUserDuplicate(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{registerErr: service.ErrUserExists})

	w := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateUserMissingID(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{"name": "Alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinRoomSuccess(t *testing.T) {
	stub := &stubPresenceService{}
	router, _ := setupHandler(stub)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rooms/room-1/join", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "u1", stub.joinedUser)
	require.Equal(t, "room-1", stub.joinedRoom)
}

func TestJoinRoomMissingUserID(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/rooms/room-1/join", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinRoomErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"already in room", service.ErrAlreadyInRoom, http.StatusConflict},
		{"already joining", service.ErrAlreadyJoining, http.StatusConflict},
		{"outside region", service.ErrOutsideRegion, http.StatusForbidden},
		{"permission denied", service.ErrPermissionDenied, http.StatusForbidden},
		{"join timeout", service.ErrJoinTimeout, http.StatusRequestTimeout},
		{"user not found", service.ErrUserNotFound, http.StatusNotFound},
		{"write failed", service.ErrWriteFailed, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := setupHandler(&stubPresenceService{joinErr: tc.err})

			w := doJSON(t, router, http.MethodPost, "/api/v1/rooms/room-1/join", map[string]string{"user_id": "u1"})
			require.Equal(t, tc.wantCode, w.Code)
		})
	}
}

func TestJoinRoomPermissionDeniedIncludesHint(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{joinErr: service.ErrPermissionDenied})

	w := doJSON(t, router, http.MethodPost, "/api/v1/rooms/room-1/join", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body, "settings_hint")
}

func TestLeaveRoomSuccess(t *testing.T) {
	stub := &stubPresenceService{}
	router, _ := setupHandler(stub)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rooms/room-1/leave", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "u1", stub.leftUser)
}

func TestLeaveRoomUnknownUser(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{leaveErr: service.ErrUserNotFound})

	w := doJSON(t, router, http.MethodPost, "/api/v1/rooms/room-1/leave", map[string]string{"user_id": "ghost"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPresenceStatus(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{})

	w := doJSON(t, router, http.MethodGet, "/api/v1/presence/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status service.PresenceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, "u1", status.UserID)
	require.Equal(t, "room-1", status.RoomID)
}

func TestPresenceStatusUnknownUser(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{statusErr: service.ErrUserNotFound})

	w := doJSON(t, router, http.MethodGet, "/api/v1/presence/ghost", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomOccupants(t *testing.T) {
	stub := &stubPresenceService{
		occupants: []models.Occupancy{
			{RoomID: "room-1", UserID: "u1", JoinedAt: time.Now()},
			{RoomID: "room-1", UserID: "u2", JoinedAt: time.Now()},
		},
	}
	router, _ := setupHandler(stub)

	w := doJSON(t, router, http.MethodGet, "/api/v1/rooms/room-1/occupants", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		RoomID    string             `json:"room_id"`
		Occupants []models.Occupancy `json:"occupants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Occupants, 2)
}

func TestGeofenceEventUpdatesMonitor(t *testing.T) {
	router, mon := setupHandler(&stubPresenceService{})

	require.NoError(t, mon.Arm(context.Background(), models.Region{Identifier: "library", RadiusMeters: 500}))

	w := doJSON(t, router, http.MethodPost, "/api/v1/geofence/events", map[string]interface{}{
		"type":   "enter",
		"region": models.Region{Identifier: "library", RadiusMeters: 500},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, models.SideInside, mon.Side())
}

func TestGeofenceEventRejectsUnknownType(t *testing.T) {
	router, _ := setupHandler(&stubPresenceService{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/geofence/events", map[string]interface{}{
		"type": "dwell",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
