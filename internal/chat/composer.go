package chat

import (
	"context"
	"strings"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/carechat/internal/api"
	"github.com/mbeoliero/carechat/pkg/errcode"
	"github.com/mbeoliero/carechat/pkg/idgen"
)

// Sender submits messages to the backend. Satisfied by the api client.
type Sender interface {
	SendMessage(ctx context.Context, roomId int64, text string) (*api.MessageRecord, error)
}

// Composer implements optimistic sending: an entry with a temporary id and
// "sending" status is rendered immediately, then reconciled with the
// authoritative server record on confirmation. A failed send is marked
// failed and kept visible for retry.
type Composer struct {
	sender   Sender
	history  *History
	roomId   int64
	senderId string
}

// NewComposer creates a composer bound to one room's history
func NewComposer(sender Sender, history *History, roomId int64, senderId string) *Composer {
	return &Composer{
		sender:   sender,
		history:  history,
		roomId:   roomId,
		senderId: senderId,
	}
}

// Send validates and submits text. Empty or whitespace-only input is
// rejected before any network call.
func (c *Composer) Send(ctx context.Context, text string) (Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, errcode.ErrEmptyMessage
	}

	optimistic := Message{
		TempId:    idgen.NewTempId(),
		RoomId:    c.roomId,
		SenderId:  c.senderId,
		Text:      trimmed,
		CreatedAt: time.Now(),
		Status:    StatusSending,
	}
	c.history.Apply(optimistic)

	return c.submit(ctx, optimistic)
}

// Retry re-submits a message that previously failed to confirm
func (c *Composer) Retry(ctx context.Context, tempId string) (Message, error) {
	msg, ok := c.history.Get(tempId)
	if !ok {
		return Message{}, errcode.ErrUnknownTempId
	}
	if msg.Status != StatusFailed {
		return msg, nil
	}

	c.history.MarkSending(tempId)
	return c.submit(ctx, msg)
}

// submit performs the authoritative send and reconciles the optimistic
// entry by temporary id
func (c *Composer) submit(ctx context.Context, optimistic Message) (Message, error) {
	rec, err := c.sender.SendMessage(ctx, c.roomId, optimistic.Text)
	if err != nil {
		// Keep the entry visible, flagged failed. Silently confirming
		// here would hide a lost message from the user.
		c.history.MarkFailed(optimistic.TempId)
		log.CtxWarn(ctx, "send failed: room_id=%d, temp_id=%s, error=%v", c.roomId, optimistic.TempId, err)
		return Message{}, errcode.ErrSendFailed.Wrap(err)
	}

	confirmed := FromRecord(rec, StatusSent)
	if confirmed.RoomId == 0 {
		confirmed.RoomId = c.roomId
	}
	if confirmed.SenderId == "" {
		confirmed.SenderId = c.senderId
	}

	c.history.ReplaceTemp(optimistic.TempId, confirmed)
	return confirmed, nil
}
