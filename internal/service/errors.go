package service

import "errors"

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrJoinTimeout      = errors.New("no geofence confirmation before the deadline")
	ErrOutsideRegion    = errors.New("must be inside the room area to join")
	ErrAlreadyJoining   = errors.New("a join attempt is already pending")
	ErrAlreadyInRoom    = errors.New("already in this room")
	ErrWriteFailed      = errors.New("document write failed")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already registered")
)
