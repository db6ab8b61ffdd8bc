package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/carechat/internal/config"
	"github.com/mbeoliero/carechat/pkg/errcode"
)

// recordedRequest captures what the backend saw
type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header
	Body   []byte
}

// fakeBackend serves enveloped responses and records requests
type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]func(r *http.Request) (int, interface{}, *errcode.Error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{handlers: make(map[string]func(r *http.Request) (int, interface{}, *errcode.Error))}
}

func (b *fakeBackend) handle(method, path string, fn func(r *http.Request) (int, interface{}, *errcode.Error)) {
	b.handlers[method+" "+path] = fn
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	query := make(map[string]string)
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  query,
		Header: r.Header.Clone(),
		Body:   body,
	})
	b.mu.Unlock()

	fn, ok := b.handlers[r.Method+" "+r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}

	status, data, apiErr := fn(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{"code": 0, "msg": "success"}
	if apiErr != nil {
		resp["code"] = apiErr.Code
		resp["msg"] = apiErr.Msg
	} else if data != nil {
		resp["data"] = data
	}
	json.NewEncoder(w).Encode(resp)
}

func (b *fakeBackend) last(t *testing.T) recordedRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.requests)
	return b.requests[len(b.requests)-1]
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.Config{API: config.APIConfig{BaseURL: baseURL}}
	cfg.ApplyDefaults()
	cfg.API.BaseURL = baseURL

	c, err := NewClient(&cfg.API, WithToken("test-token"))
	require.NoError(t, err)
	return c
}

func TestClient_OpenRoom(t *testing.T) {
	backend := newFakeBackend()
	backend.handle(http.MethodPost, "/chat/rooms/open", func(r *http.Request) (int, interface{}, *errcode.Error) {
		return http.StatusOK, OpenRoomResponse{
			Room:   RoomRef{Id: 700, ServiceRequestId: 42},
			Member: &MemberRef{UnreadCount: 3},
		}, nil
	})
	ts := httptest.NewServer(backend)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	resp, err := c.OpenRoom(context.Background(), 42)
	require.NoError(t, err)

	assert.EqualValues(t, 700, resp.Room.Id)
	require.NotNil(t, resp.Member)
	assert.EqualValues(t, 3, resp.Member.UnreadCount)

	req := backend.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
	assert.NotEmpty(t, req.Header.Get("X-Operation-Id"))

	var body OpenRoomRequest
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.EqualValues(t, 42, body.ServiceRequestId)
}

func TestClient_ListMessages(t *testing.T) {
	backend := newFakeBackend()
	backend.handle(http.MethodGet, "/chat/rooms/7/messages", func(r *http.Request) (int, interface{}, *errcode.Error) {
		return http.StatusOK, HistoryResponse{
			Items: []MessageRecord{
				{Id: 45, RoomId: 7, SenderId: "u1", Text: "newest", CreatedAt: time.Now()},
				{Id: 44, RoomId: 7, SenderId: "u2", Text: "older", CreatedAt: time.Now()},
			},
			NextCursor: "c44",
		}, nil
	})
	ts := httptest.NewServer(backend)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	resp, err := c.ListMessages(context.Background(), 7, 30, "c99")
	require.NoError(t, err)

	assert.Len(t, resp.Items, 2)
	assert.Equal(t, "c44", resp.NextCursor)

	req := backend.last(t)
	assert.Equal(t, "backward", req.Query["dir"])
	assert.Equal(t, "30", req.Query["limit"])
	assert.Equal(t, "c99", req.Query["cursor"])
}

func TestClient_SendMessage(t *testing.T) {
	backend := newFakeBackend()
	backend.handle(http.MethodPost, "/chat/messages", func(r *http.Request) (int, interface{}, *errcode.Error) {
		return http.StatusOK, MessageRecord{Id: 101, RoomId: 7, SenderId: "me", Text: "hello", CreatedAt: time.Now()}, nil
	})
	ts := httptest.NewServer(backend)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	rec, err := c.SendMessage(context.Background(), 7, "hello")
	require.NoError(t, err)
	assert.EqualValues(t, 101, rec.Id)

	var body SendMessageRequest
	require.NoError(t, json.Unmarshal(backend.last(t).Body, &body))
	assert.EqualValues(t, 7, body.ConversationId)
	assert.Equal(t, "TEXT", body.MessageType)
	assert.Equal(t, "hello", body.Text)
}

func TestClient_MarkRead(t *testing.T) {
	backend := newFakeBackend()
	backend.handle(http.MethodPost, "/chat/rooms/7/read", func(r *http.Request) (int, interface{}, *errcode.Error) {
		return http.StatusOK, nil, nil
	})
	ts := httptest.NewServer(backend)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	require.NoError(t, c.MarkRead(context.Background(), 7))
	assert.Equal(t, "/chat/rooms/7/read", backend.last(t).Path)
}

func TestClient_ListRooms(t *testing.T) {
	backend := newFakeBackend()
	backend.handle(http.MethodGet, "/chat/rooms", func(r *http.Request) (int, interface{}, *errcode.Error) {
		return http.StatusOK, []RoomListItem{
			{RoomId: 700, ServiceRequestId: 42, UnreadCount: 3},
			{RoomId: 701, ServiceRequestId: 43, UnreadCount: 0},
		}, nil
	})
	ts := httptest.NewServer(backend)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.EqualValues(t, 3, rooms[0].UnreadCount)
}

func TestClient_BackendErrorPassesThrough(t *testing.T) {
	backend := newFakeBackend()
	backend.handle(http.MethodPost, "/chat/rooms/open", func(r *http.Request) (int, interface{}, *errcode.Error) {
		return http.StatusOK, nil, errcode.ErrForbidden
	})
	ts := httptest.NewServer(backend)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	_, err := c.OpenRoom(context.Background(), 42)
	require.Error(t, err)

	var apiErr *errcode.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errcode.ErrForbidden.Code, apiErr.Code)
}

func TestClient_TransportErrorWrapped(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.OpenRoom(context.Background(), 42)
	require.ErrorIs(t, err, errcode.ErrTransport)
}

func TestClient_PollEvents(t *testing.T) {
	backend := newFakeBackend()
	backend.handle(http.MethodGet, "/chat/rooms/7/events", func(r *http.Request) (int, interface{}, *errcode.Error) {
		n := int64(2)
		return http.StatusOK, PollEventsResponse{
			Events:     []RoomEvent{{Type: "room:unread", RoomId: 7, UnreadCount: &n}},
			NextCursor: "e9",
		}, nil
	})
	ts := httptest.NewServer(backend)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	resp, err := c.PollEvents(context.Background(), 7, "e8")
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "e9", resp.NextCursor)
	assert.Equal(t, "e8", backend.last(t).Query["cursor"])
}
