package kafka

const (
	TopicRoomJoined = "PRESENCE_ROOM_JOINED"
	TopicRoomLeft   = "PRESENCE_ROOM_LEFT"
)

// Reasons carried on RoomLeftEvent.
const (
	LeaveReasonUserLeft = "user_left"
	LeaveReasonLeftArea = "left_area"
	LeaveReasonEvicted  = "evicted"
)
