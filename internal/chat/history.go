package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/carechat/internal/api"
	"github.com/mbeoliero/carechat/pkg/errcode"
)

// HistoryFetcher fetches backward pages of message history. Satisfied by
// the api client.
type HistoryFetcher interface {
	ListMessages(ctx context.Context, roomId int64, limit int, cursor string) (*api.HistoryResponse, error)
}

// History holds the merged, chronologically ordered message list for one
// room and drives backward pagination. Pages arrive newest-first from the
// server and are reversed for display; overlapping pages and live pushes
// are deduplicated by message id so any id appears exactly once.
type History struct {
	fetcher  HistoryFetcher
	roomId   int64
	pageSize int

	mu        sync.Mutex
	messages  []Message
	seen      map[string]struct{}
	cursor    string
	loaded    bool
	exhausted bool
	inFlight  bool
	fetchErr  error
}

// NewHistory creates a history loader for a room
func NewHistory(fetcher HistoryFetcher, roomId int64, pageSize int) *History {
	return &History{
		fetcher:  fetcher,
		roomId:   roomId,
		pageSize: pageSize,
		seen:     make(map[string]struct{}),
	}
}

// FetchInitial loads the most recent page and records the pagination cursor
func (h *History) FetchInitial(ctx context.Context) error {
	h.mu.Lock()
	if h.inFlight {
		h.mu.Unlock()
		return nil
	}
	h.inFlight = true
	h.mu.Unlock()

	resp, err := h.fetcher.ListMessages(ctx, h.roomId, h.pageSize, "")

	h.mu.Lock()
	defer h.mu.Unlock()
	h.inFlight = false

	if err != nil {
		h.fetchErr = errcode.ErrHistoryFetch.Wrap(err)
		return h.fetchErr
	}

	h.loaded = true
	h.cursor = resp.NextCursor
	h.exhausted = resp.NextCursor == ""
	h.mergeLocked(resp.Items)
	return nil
}

// FetchBackward loads the next older page. It is a no-op when no cursor
// remains, a fetch is already in flight, or a prior page errored this
// session. Returns the number of messages prepended so the caller can
// re-anchor scroll position.
func (h *History) FetchBackward(ctx context.Context) (int, error) {
	h.mu.Lock()
	if !h.loaded || h.exhausted || h.inFlight || h.fetchErr != nil || h.cursor == "" {
		h.mu.Unlock()
		return 0, nil
	}
	h.inFlight = true
	cursor := h.cursor
	h.mu.Unlock()

	resp, err := h.fetcher.ListMessages(ctx, h.roomId, h.pageSize, cursor)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.inFlight = false

	if err != nil {
		// Stop paging for this session; the error stays inspectable
		h.fetchErr = errcode.ErrHistoryFetch.Wrap(err)
		log.CtxWarn(ctx, "backward history fetch failed: room_id=%d, error=%v", h.roomId, err)
		return 0, h.fetchErr
	}

	h.cursor = resp.NextCursor
	if resp.NextCursor == "" {
		h.exhausted = true
	}
	return h.mergeLocked(resp.Items), nil
}

// mergeLocked merges records into the ordered list, skipping ids already
// present. Returns how many were inserted before the previous head.
func (h *History) mergeLocked(items []api.MessageRecord) int {
	var oldestId int64
	var oldestAt int64
	if len(h.messages) > 0 {
		oldestId = h.messages[0].Id
		oldestAt = h.messages[0].CreatedAt.UnixMilli()
	}

	prepended := 0
	for i := range items {
		msg := FromRecord(&items[i], StatusSent)
		if _, dup := h.seen[msg.Key()]; dup {
			continue
		}
		h.seen[msg.Key()] = struct{}{}
		h.messages = append(h.messages, msg)

		if oldestId != 0 {
			at := msg.CreatedAt.UnixMilli()
			if at < oldestAt || (at == oldestAt && msg.Id < oldestId) {
				prepended++
			}
		}
	}

	h.sortLocked()
	return prepended
}

// sortLocked keeps the list ascending by (timestamp, id); pending messages
// sort last since they are the newest by construction
func (h *History) sortLocked() {
	sort.SliceStable(h.messages, func(i, j int) bool {
		a, b := &h.messages[i], &h.messages[j]
		if a.Pending() != b.Pending() {
			return b.Pending()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Id < b.Id
	})
}

// Apply inserts a live-pushed or optimistic message, deduplicating by id
func (h *History) Apply(msg Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, dup := h.seen[msg.Key()]; dup {
		return false
	}
	h.seen[msg.Key()] = struct{}{}
	h.messages = append(h.messages, msg)
	h.sortLocked()
	return true
}

// ReplaceTemp swaps the optimistic entry for the server-confirmed message,
// matched by temporary id. When the confirmed id already arrived via push,
// the temp entry is simply removed.
func (h *History) ReplaceTemp(tempId string, confirmed Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.indexOfTempLocked(tempId)
	if idx < 0 {
		return false
	}

	delete(h.seen, tempId)

	if _, dup := h.seen[confirmed.Key()]; dup {
		h.messages = append(h.messages[:idx], h.messages[idx+1:]...)
		return true
	}

	h.seen[confirmed.Key()] = struct{}{}
	h.messages[idx] = confirmed
	h.sortLocked()
	return true
}

// MarkFailed flags an optimistic entry as failed-to-confirm, keeping it
// visible for retry
func (h *History) MarkFailed(tempId string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.indexOfTempLocked(tempId)
	if idx < 0 {
		return false
	}
	h.messages[idx].Status = StatusFailed
	return true
}

// MarkSending flips a failed entry back to sending, for retry
func (h *History) MarkSending(tempId string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.indexOfTempLocked(tempId)
	if idx < 0 {
		return false
	}
	h.messages[idx].Status = StatusSending
	return true
}

func (h *History) indexOfTempLocked(tempId string) int {
	for i := range h.messages {
		if h.messages[i].TempId == tempId {
			return i
		}
	}
	return -1
}

// Get returns the message with the given temp id, if present
func (h *History) Get(tempId string) (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.indexOfTempLocked(tempId)
	if idx < 0 {
		return Message{}, false
	}
	return h.messages[idx], true
}

// Messages returns a copy of the current chronological list
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages in the list
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// HasMore reports whether older pages remain
func (h *History) HasMore() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded && !h.exhausted && h.fetchErr == nil
}

// Err returns the first fetch error of this session, distinguishing a real
// failure from cursor exhaustion
func (h *History) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fetchErr
}
