package models

import "time"

// User is the profile document the coordinator mutates. Only CurrentRoomID
// and LastActiveAt are owned by this service; the rest belongs to the
// auth/profile subsystem and is carried through untouched.
type User struct {
	UID           string    `json:"uid"`
	Name          string    `json:"name,omitempty"`
	Email         string    `json:"email,omitempty"`
	PushToken     string    `json:"push_token,omitempty"`
	CurrentRoomID string    `json:"current_room_id"`
	LastActiveAt  time.Time `json:"last_active_at"`
	TotalTime     int64     `json:"total_time,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// InRoom reports whether the user is currently a member of any room.
func (u *User) InRoom() bool {
	return u.CurrentRoomID != ""
}

// StaleSince reports whether the user's heartbeat has been silent past the
// given cutoff.
func (u *User) StaleSince(cutoff time.Time) bool {
	return u.LastActiveAt.Before(cutoff)
}
