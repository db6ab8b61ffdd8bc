package socket

import (
	"encoding/json"

	"github.com/mbeoliero/carechat/internal/api"
)

// Event names on the real-time channel
const (
	// Server push events
	EventMessageNew = "message:new"
	EventRoomUnread = "room:unread"

	// Client emit events
	EventRoomJoin = "room:join"
	EventJoinUser = "join:user"
)

// Frame is the wire format for both directions: an event name plus a JSON
// payload
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload subscribes the connection to a room channel
type JoinRoomPayload struct {
	ConversationId int64 `json:"conversationId"`
}

// JoinUserPayload subscribes the connection to the user's personal channel
type JoinUserPayload struct {
	UserId string `json:"user_id"`
}

// UnreadPayload is the room:unread push payload. UnreadCount is a pointer
// because the backend omits it on some notification paths; absent means
// "recount yourself", which the store treats as a bump.
type UnreadPayload struct {
	RoomId           int64  `json:"room_id"`
	ServiceRequestId int64  `json:"service_request_id,omitempty"`
	UnreadCount      *int64 `json:"unread_count,omitempty"`
}

// DecodeMessage decodes a message:new payload into the canonical record
func DecodeMessage(data json.RawMessage) (*api.MessageRecord, error) {
	var msg api.MessageRecord
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeUnread decodes a room:unread payload
func DecodeUnread(data json.RawMessage) (*UnreadPayload, error) {
	var p UnreadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
