package kafka

import "time"

type RoomJoinedEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	JoinedAt  time.Time `json:"joined_at"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomLeftEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Reason    string    `json:"reason"`
	LeftAt    time.Time `json:"left_at"`
	Timestamp time.Time `json:"timestamp"`
}
