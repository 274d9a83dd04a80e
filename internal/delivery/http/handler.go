package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/studyhive/roompresence/internal/geofence"
	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/internal/service"
	"github.com/studyhive/roompresence/pkg/logger"
)

type HTTPHandler struct {
	presenceService service.PresenceService
	monitor         *geofence.Monitor
	logger          logger.Logger
	validator       *validator.Validate
}

func NewHTTPHandler(presenceService service.PresenceService, monitor *geofence.Monitor, logger logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		presenceService: presenceService,
		monitor:         monitor,
		logger:          logger,
		validator:       validator.New(),
	}
}

// Routes mounts the presence API.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", h.CreateUser)
		r.Post("/rooms/{roomId}/join", h.JoinRoom)
		r.Post("/rooms/{roomId}/leave", h.LeaveRoom)
		r.Get("/rooms/{roomId}/occupants", h.RoomOccupants)
		r.Get("/presence/{userId}", h.PresenceStatus)
		r.Post("/geofence/events", h.GeofenceEvent)
	})

	return r
}

// HealthCheck handles health check requests
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "roompresence",
		"version": "1.0.0",
	}
	h.respondJSON(w, http.StatusOK, response)
}

type createUserRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Name      string `json:"name"`
	Email     string `json:"email" validate:"omitempty,email"`
	PushToken string `json:"push_token"`
}

type joinRoomRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type leaveRoomRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type geofenceEventRequest struct {
	Type   string        `json:"type" validate:"required,oneof=enter exit"`
	Region models.Region `json:"region"`
}

// CreateUser provisions a user profile document.
func (h *HTTPHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if err := h.presenceService.RegisterUser(r.Context(), models.User{
		UID:       req.UserID,
		Name:      req.Name,
		Email:     req.Email,
		PushToken: req.PushToken,
	}); err != nil {
		switch {
		case errors.Is(err, service.ErrUserExists):
			h.respondError(w, http.StatusConflict, "User already registered", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to create user - user_id: %s, error: %v", req.UserID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to create user", err)
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"user_id": req.UserID,
		"created": true,
	})
}

// JoinRoom handles join requests; the call suspends until the geofence race
// resolves or the client goes away.
func (h *HTTPHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		h.respondError(w, http.StatusBadRequest, "Room ID is required", nil)
		return
	}

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if err := h.presenceService.Join(r.Context(), req.UserID, roomID); err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyInRoom):
			h.respondError(w, http.StatusConflict, "You are already in this room", err)
		case errors.Is(err, service.ErrAlreadyJoining):
			h.respondError(w, http.StatusConflict, "A join attempt is already in progress", err)
		case errors.Is(err, service.ErrOutsideRegion):
			h.respondError(w, http.StatusForbidden, "You must be inside the area to join", err)
		case errors.Is(err, service.ErrPermissionDenied):
			h.respondJSON(w, http.StatusForbidden, map[string]interface{}{
				"error":         "Location permission denied",
				"settings_hint": "Enable background location access in system settings",
			})
		case errors.Is(err, service.ErrJoinTimeout):
			h.respondError(w, http.StatusRequestTimeout, "Join failed, please try again later", err)
		case errors.Is(err, service.ErrUserNotFound):
			h.respondError(w, http.StatusNotFound, "User not found", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to join room - room_id: %s, error: %v", roomID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to join room", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": req.UserID,
		"room_id": roomID,
		"joined":  true,
	})
}

// LeaveRoom handles leave requests. Leaving while not in a room succeeds.
func (h *HTTPHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		h.respondError(w, http.StatusBadRequest, "Room ID is required", nil)
		return
	}

	var req leaveRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if err := h.presenceService.Leave(r.Context(), req.UserID); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			h.respondError(w, http.StatusNotFound, "User not found", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to leave room - room_id: %s, error: %v", roomID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to leave room", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": req.UserID,
		"left":    true,
	})
}

// RoomOccupants lists the current occupancy records for a room.
func (h *HTTPHandler) RoomOccupants(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		h.respondError(w, http.StatusBadRequest, "Room ID is required", nil)
		return
	}

	occs, err := h.presenceService.RoomOccupants(r.Context(), roomID)
	if err != nil {
		h.logger.Errorf(r.Context(), "Failed to list occupants - room_id: %s, error: %v", roomID, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list occupants", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":   roomID,
		"occupants": occs,
	})
}

// PresenceStatus returns the reconciled membership view for a user.
func (h *HTTPHandler) PresenceStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "User ID is required", nil)
		return
	}

	status, err := h.presenceService.Status(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			h.respondError(w, http.StatusNotFound, "User not found", err)
		default:
			h.logger.Errorf(r.Context(), "Failed to get presence status - user_id: %s, error: %v", userID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to get presence status", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// GeofenceEvent is the ingress for platform boundary-crossing callbacks.
func (h *HTTPHandler) GeofenceEvent(w http.ResponseWriter, r *http.Request) {
	var req geofenceEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	h.monitor.HandleEvent(r.Context(), models.GeofenceEvent{
		Type:   models.GeofenceEventType(req.Type),
		Region: req.Region,
	})

	h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
	})
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorf(context.Background(), "Failed to encode response: %v", err)
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]interface{}{
		"error": message,
	}
	if err != nil {
		body["detail"] = err.Error()
	}
	h.respondJSON(w, status, body)
}
