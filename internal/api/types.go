package api

import (
	"encoding/json"
	"strconv"
	"time"
)

// MessageRecord is the canonical client-side projection of a chat message.
// All wire-shape tolerance lives in UnmarshalJSON; the rest of the codebase
// only ever sees this shape.
type MessageRecord struct {
	Id        int64     `json:"id"`
	RoomId    int64     `json:"room_id"`
	SenderId  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// wireMessage accepts the alternate field spellings the backend emits.
// Sender id has appeared as sender_id, senderId, user_id and from; the
// timestamp as created_at, createdAt, sent_at and timestamp (RFC3339 string
// or unix milliseconds).
type wireMessage struct {
	Id             int64           `json:"id"`
	MessageId      int64           `json:"message_id"`
	RoomId         int64           `json:"room_id"`
	RoomIdAlt      int64           `json:"roomId"`
	ConversationId int64           `json:"conversationId"`
	SenderId       string          `json:"sender_id"`
	SenderIdAlt    string          `json:"senderId"`
	UserId         string          `json:"user_id"`
	From           string          `json:"from"`
	Text           string          `json:"text"`
	Message        string          `json:"message"`
	CreatedAt      json.RawMessage `json:"created_at"`
	CreatedAtAlt   json.RawMessage `json:"createdAt"`
	SentAt         json.RawMessage `json:"sent_at"`
	Timestamp      json.RawMessage `json:"timestamp"`
}

// UnmarshalJSON maps the tolerated wire shapes onto the canonical record
func (m *MessageRecord) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	m.Id = firstInt64(w.Id, w.MessageId)
	m.RoomId = firstInt64(w.RoomId, w.RoomIdAlt, w.ConversationId)
	m.SenderId = firstString(w.SenderId, w.SenderIdAlt, w.UserId, w.From)
	m.Text = firstString(w.Text, w.Message)
	m.CreatedAt = firstTime(w.CreatedAt, w.CreatedAtAlt, w.SentAt, w.Timestamp)
	return nil
}

func firstInt64(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTime(raws ...json.RawMessage) time.Time {
	for _, raw := range raws {
		if t, ok := parseWireTime(raw); ok {
			return t
		}
	}
	return time.Time{}
}

// parseWireTime accepts an RFC3339 string or unix milliseconds
func parseWireTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		// Numeric string, seen from the admin backfill path
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms), true
		}
		return time.Time{}, false
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// ===== Request/response types =====

// OpenRoomRequest represents the idempotent room resolution request
type OpenRoomRequest struct {
	ServiceRequestId int64 `json:"service_request_id"`
}

// OpenRoomResponse represents the room resolution response
type OpenRoomResponse struct {
	Room   RoomRef    `json:"room"`
	Member *MemberRef `json:"member,omitempty"`
}

// RoomRef identifies a resolved room
type RoomRef struct {
	Id               int64 `json:"id"`
	ServiceRequestId int64 `json:"service_request_id,omitempty"`
	CompanyId        int64 `json:"company_id,omitempty"`
}

// MemberRef carries the caller's membership state in a resolved room
type MemberRef struct {
	UnreadCount int64 `json:"unread_count"`
}

// HistoryResponse represents a page of message history
type HistoryResponse struct {
	Items      []MessageRecord `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// SendMessageRequest represents the send message request
type SendMessageRequest struct {
	ConversationId int64  `json:"conversationId"`
	MessageType    string `json:"message_type"`
	Text           string `json:"text"`
}

// RoomListItem represents one entry of the room list used to seed badges
type RoomListItem struct {
	RoomId           int64 `json:"room_id"`
	ServiceRequestId int64 `json:"service_request_id,omitempty"`
	UnreadCount      int64 `json:"unread_count"`
}

// RoomEvent is one entry of the long-poll event stream, the degraded path
// when the socket cannot connect
type RoomEvent struct {
	Type        string         `json:"type"`
	Message     *MessageRecord `json:"message,omitempty"`
	RoomId      int64          `json:"room_id,omitempty"`
	UnreadCount *int64         `json:"unread_count,omitempty"`
}

// PollEventsResponse represents a long-poll response
type PollEventsResponse struct {
	Events     []RoomEvent `json:"events"`
	NextCursor string      `json:"nextCursor,omitempty"`
}
