package models

import "time"

// Occupancy asserts that a user is physically present in a room. At most one
// record exists per (room, user) pair, and a record for (R, U) exists iff
// User(U).CurrentRoomID == R.
type Occupancy struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}
