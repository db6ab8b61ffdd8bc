package chat

import (
	"strconv"
	"time"

	"github.com/mbeoliero/carechat/internal/api"
)

// Status is the delivery state of a message in the displayed list
type Status int32

const (
	StatusSending Status = iota + 1
	StatusSent
	StatusDelivered
	StatusRead
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is the client-side projection of a chat message. A message is
// either pending (TempId set, Id zero) or confirmed (Id set, TempId empty);
// reconciliation replaces one with the other atomically, keyed by TempId.
type Message struct {
	Id        int64
	TempId    string
	RoomId    int64
	SenderId  string
	Text      string
	CreatedAt time.Time
	Status    Status
}

// FromRecord builds a confirmed message from the canonical wire record
func FromRecord(rec *api.MessageRecord, status Status) Message {
	return Message{
		Id:        rec.Id,
		RoomId:    rec.RoomId,
		SenderId:  rec.SenderId,
		Text:      rec.Text,
		CreatedAt: rec.CreatedAt,
		Status:    status,
	}
}

// Pending reports whether the message is still awaiting server confirmation
func (m *Message) Pending() bool {
	return m.Id == 0 && m.TempId != ""
}

// Key returns the identifier used for list deduplication: the server id for
// confirmed messages, the temporary id otherwise. The two can never collide
// because temp ids carry a non-numeric prefix.
func (m *Message) Key() string {
	if m.Id != 0 {
		return strconv.FormatInt(m.Id, 10)
	}
	return m.TempId
}
