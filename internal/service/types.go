package service

import "time"

// PresenceStatus is the reconciled view of a user's room membership.
type PresenceStatus struct {
	UserID       string    `json:"user_id"`
	RoomID       string    `json:"room_id,omitempty"`
	JoinPending  bool      `json:"join_pending"`
	LastActiveAt time.Time `json:"last_active_at"`
	GeofenceSide string    `json:"geofence_side"`
}

// ReaperStatus reports sweep metrics.
type ReaperStatus struct {
	IsRunning      bool      `json:"is_running"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	LastSweep      time.Time `json:"last_sweep,omitempty"`
	TotalReclaimed int64     `json:"total_reclaimed"`
	TotalSkipped   int64     `json:"total_skipped"`
}
