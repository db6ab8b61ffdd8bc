package api

import (
	"context"
	"fmt"
	"strconv"
)

// OpenRoom resolves (or lazily creates) the chat room for a service request.
// The backend guarantees idempotence: the same service request id always
// resolves to the same room.
func (c *Client) OpenRoom(ctx context.Context, serviceRequestId int64) (*OpenRoomResponse, error) {
	req := &OpenRoomRequest{ServiceRequestId: serviceRequestId}
	var result OpenRoomResponse
	if err := c.post(ctx, "/chat/rooms/open", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListMessages fetches one backward page of message history. The server
// returns the newest page first; cursor is empty for the initial page.
func (c *Client) ListMessages(ctx context.Context, roomId int64, limit int, cursor string) (*HistoryResponse, error) {
	params := map[string]string{
		"dir": "backward",
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	var result HistoryResponse
	path := fmt.Sprintf("/chat/rooms/%d/messages", roomId)
	if err := c.get(ctx, path, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendMessage submits a text message and returns the server-confirmed record
func (c *Client) SendMessage(ctx context.Context, roomId int64, text string) (*MessageRecord, error) {
	req := &SendMessageRequest{
		ConversationId: roomId,
		MessageType:    "TEXT",
		Text:           text,
	}
	var result MessageRecord
	if err := c.post(ctx, "/chat/messages", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead acknowledges all messages in the room up to now as read
func (c *Client) MarkRead(ctx context.Context, roomId int64) error {
	path := fmt.Sprintf("/chat/rooms/%d/read", roomId)
	return c.post(ctx, path, nil, nil)
}

// ListRooms fetches the caller's rooms with their unread counts, used to
// seed badge state on startup
func (c *Client) ListRooms(ctx context.Context) ([]RoomListItem, error) {
	var result []RoomListItem
	if err := c.get(ctx, "/chat/rooms", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// PollEvents long-polls room events, the degraded transport used when the
// socket cannot connect
func (c *Client) PollEvents(ctx context.Context, roomId int64, cursor string) (*PollEventsResponse, error) {
	params := map[string]string{}
	if cursor != "" {
		params["cursor"] = cursor
	}

	var result PollEventsResponse
	path := fmt.Sprintf("/chat/rooms/%d/events", roomId)
	if err := c.get(ctx, path, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
