package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/carechat/internal/api"
)

// fakeAPI implements ChatAPI with per-call hooks and counters
type fakeAPI struct {
	mu sync.Mutex

	openRoomFn     func(ctx context.Context, serviceRequestId int64) (*api.OpenRoomResponse, error)
	listMessagesFn func(ctx context.Context, roomId int64, limit int, cursor string) (*api.HistoryResponse, error)
	sendMessageFn  func(ctx context.Context, roomId int64, text string) (*api.MessageRecord, error)
	markReadFn     func(ctx context.Context, roomId int64) error
	pollEventsFn   func(ctx context.Context, roomId int64, cursor string) (*api.PollEventsResponse, error)

	openRoomCalls     atomic.Int64
	listMessagesCalls atomic.Int64
	sendMessageCalls  atomic.Int64
	markReadCalls     atomic.Int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{}
}

func (f *fakeAPI) OpenRoom(ctx context.Context, serviceRequestId int64) (*api.OpenRoomResponse, error) {
	f.openRoomCalls.Add(1)
	if f.openRoomFn != nil {
		return f.openRoomFn(ctx, serviceRequestId)
	}
	return &api.OpenRoomResponse{Room: api.RoomRef{Id: serviceRequestId + 1000}}, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, roomId int64, limit int, cursor string) (*api.HistoryResponse, error) {
	f.listMessagesCalls.Add(1)
	if f.listMessagesFn != nil {
		return f.listMessagesFn(ctx, roomId, limit, cursor)
	}
	return &api.HistoryResponse{}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, roomId int64, text string) (*api.MessageRecord, error) {
	f.sendMessageCalls.Add(1)
	if f.sendMessageFn != nil {
		return f.sendMessageFn(ctx, roomId, text)
	}
	return &api.MessageRecord{
		Id:        f.sendMessageCalls.Load(),
		RoomId:    roomId,
		SenderId:  "me",
		Text:      text,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, roomId int64) error {
	f.markReadCalls.Add(1)
	if f.markReadFn != nil {
		return f.markReadFn(ctx, roomId)
	}
	return nil
}

func (f *fakeAPI) PollEvents(ctx context.Context, roomId int64, cursor string) (*api.PollEventsResponse, error) {
	if f.pollEventsFn != nil {
		return f.pollEventsFn(ctx, roomId, cursor)
	}
	return &api.PollEventsResponse{}, nil
}

// makeRecords builds n sequential records, oldest first, starting at id
// firstId with one-second spacing
func makeRecords(firstId int64, n int) []api.MessageRecord {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]api.MessageRecord, 0, n)
	for i := 0; i < n; i++ {
		id := firstId + int64(i)
		out = append(out, api.MessageRecord{
			Id:        id,
			RoomId:    7,
			SenderId:  fmt.Sprintf("user-%d", id%2),
			Text:      fmt.Sprintf("message %d", id),
			CreatedAt: base.Add(time.Duration(id) * time.Second),
		})
	}
	return out
}

// reverse returns records newest-first, the order the server serves pages in
func reverse(records []api.MessageRecord) []api.MessageRecord {
	out := make([]api.MessageRecord, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out
}

// pagedFetcher serves a fixed backlog in backward pages of pageSize, like
// the real history endpoint
type pagedFetcher struct {
	backlog  []api.MessageRecord // oldest first
	pageSize int
	calls    atomic.Int64
	failNext atomic.Bool
}

func (p *pagedFetcher) ListMessages(ctx context.Context, roomId int64, limit int, cursor string) (*api.HistoryResponse, error) {
	p.calls.Add(1)
	if p.failNext.Load() {
		return nil, fmt.Errorf("backend unavailable")
	}

	end := len(p.backlog)
	if cursor != "" {
		var cursorId int64
		fmt.Sscanf(cursor, "c%d", &cursorId)
		for i, r := range p.backlog {
			if r.Id == cursorId {
				end = i
				break
			}
		}
	}

	start := end - p.pageSize
	if limit > 0 && end-limit > start {
		start = end - limit
	}
	if start < 0 {
		start = 0
	}

	resp := &api.HistoryResponse{Items: reverse(p.backlog[start:end])}
	if start > 0 {
		resp.NextCursor = fmt.Sprintf("c%d", p.backlog[start].Id)
	}
	return resp, nil
}
