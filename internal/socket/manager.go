package socket

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/carechat/internal/api"
	"github.com/mbeoliero/carechat/internal/config"
	"github.com/mbeoliero/carechat/pkg/errcode"
	"github.com/mbeoliero/carechat/pkg/token"
)

// Handler receives a pushed frame. Handlers run on the read loop goroutine
// and must not block; surfaces forward frames into their own event queue.
type Handler func(frame *Frame)

// EventPoller is the degraded transport used when the socket cannot
// connect. Satisfied by the api client.
type EventPoller interface {
	PollEvents(ctx context.Context, roomId int64, cursor string) (*api.PollEventsResponse, error)
}

// Manager memoizes a single connection to the real-time endpoint, shared by
// every chat surface in the process. A dead connection is replaced lazily on
// the next Get; dial failures are non-fatal and flip the manager into
// degraded (long-poll) mode until a dial succeeds.
type Manager struct {
	cfg    *config.SocketConfig
	token  string
	userId string
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *Conn
	degraded bool

	handlerMu   sync.RWMutex
	handlers    map[string][]handlerReg
	nextHandler int64
}

// handlerReg ties a handler to its registration id so it can be removed
type handlerReg struct {
	id int64
	fn Handler
}

// NewManager creates a connection manager. The user id is derived from the
// bearer token so the personal channel subscription survives reconnects.
func NewManager(cfg *config.SocketConfig, bearerToken string) *Manager {
	userId, err := token.UserIdOf(bearerToken)
	if err != nil {
		log.Warn("socket manager: cannot derive user id from token: %v", err)
	}

	return &Manager{
		cfg:    cfg,
		token:  bearerToken,
		userId: userId,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		handlers: make(map[string][]handlerReg),
	}
}

// On registers a handler for a pushed event. Handlers survive reconnects.
// The returned function removes the registration; callers with a shorter
// lifetime than the manager must invoke it on teardown.
func (m *Manager) On(event string, h Handler) func() {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.nextHandler++
	id := m.nextHandler
	m.handlers[event] = append(m.handlers[event], handlerReg{id: id, fn: h})
	return func() { m.off(event, id) }
}

func (m *Manager) off(event string, id int64) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	regs := m.handlers[event]
	for i := range regs {
		if regs[i].id == id {
			m.handlers[event] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// Get returns the live connection, dialing lazily when none exists or the
// prior one disconnected.
func (m *Manager) Get(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}

	if err := token.CheckExpiry(m.token, time.Now()); err != nil {
		m.degraded = true
		return nil, err
	}

	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		m.degraded = true
		return nil, errcode.ErrSocketDial.Wrap(err)
	}
	q := u.Query()
	q.Set("token", m.token)
	u.RawQuery = q.Encode()

	ws, _, err := m.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		log.CtxWarn(ctx, "socket dial failed, falling back to long-poll: url=%s, error=%v", m.cfg.URL, err)
		m.degraded = true
		return nil, errcode.ErrSocketDial.Wrap(err)
	}

	conn := newConn(ws, m.cfg)
	m.conn = conn
	m.degraded = false

	go m.readLoop(conn)

	if m.userId != "" {
		if err := conn.WriteFrame(EventJoinUser, JoinUserPayload{UserId: m.userId}); err != nil {
			log.CtxWarn(ctx, "join user channel failed: user_id=%s, error=%v", m.userId, err)
		}
	}

	return conn, nil
}

// readLoop reads frames until the connection dies, dispatching each to the
// registered handlers. A read error closes the connection; the next Get
// re-dials.
func (m *Manager) readLoop(conn *Conn) {
	defer func() {
		conn.Close()
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			log.Debug("socket read loop ended: %v", err)
			return
		}
		m.dispatch(frame)
	}
}

// dispatch delivers a frame to all handlers registered for its event
func (m *Manager) dispatch(frame *Frame) {
	m.handlerMu.RLock()
	hs := make([]Handler, 0, len(m.handlers[frame.Event]))
	for _, reg := range m.handlers[frame.Event] {
		hs = append(hs, reg.fn)
	}
	m.handlerMu.RUnlock()

	for _, h := range hs {
		h(frame)
	}
}

// Emit serializes payload and sends it as an event frame, dialing if needed
func (m *Manager) Emit(ctx context.Context, event string, payload interface{}) error {
	conn, err := m.Get(ctx)
	if err != nil {
		return err
	}
	return conn.WriteFrame(event, payload)
}

// JoinRoom subscribes the connection to a room's push channel
func (m *Manager) JoinRoom(ctx context.Context, roomId int64) error {
	return m.Emit(ctx, EventRoomJoin, JoinRoomPayload{ConversationId: roomId})
}

// Degraded reports whether the manager is in long-poll fallback mode
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// Close tears down the current connection, if any
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// PollLoop is the standing fallback for one room: every tick it ensures the
// socket is alive, re-dialing and re-joining the room after a disconnect,
// and long-polls room events only while no connection can be established.
// Polled events feed the same handler dispatch as socket pushes. Runs until
// ctx is cancelled.
func (m *Manager) PollLoop(ctx context.Context, poller EventPoller, roomId int64) {
	var cursor string
	var last *Conn
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if conn, err := m.Get(ctx); err == nil {
			// Room subscriptions do not survive a re-dial; a fresh
			// connection needs the join re-emitted
			if conn != last {
				last = conn
				if err := conn.WriteFrame(EventRoomJoin, JoinRoomPayload{ConversationId: roomId}); err != nil {
					log.CtxDebug(ctx, "rejoin after reconnect failed: room_id=%d, error=%v", roomId, err)
				}
			}
			continue
		}
		last = nil

		resp, err := poller.PollEvents(ctx, roomId, cursor)
		if err != nil {
			log.CtxDebug(ctx, "poll events failed: room_id=%d, error=%v", roomId, err)
			continue
		}
		cursor = resp.NextCursor

		for i := range resp.Events {
			if frame, ok := eventToFrame(&resp.Events[i]); ok {
				m.dispatch(frame)
			}
		}
	}
}

// eventToFrame converts a long-poll event to the push frame shape
func eventToFrame(ev *api.RoomEvent) (*Frame, bool) {
	switch ev.Type {
	case EventMessageNew:
		if ev.Message == nil {
			return nil, false
		}
		data, err := json.Marshal(ev.Message)
		if err != nil {
			return nil, false
		}
		return &Frame{Event: EventMessageNew, Data: data}, true
	case EventRoomUnread:
		data, err := json.Marshal(UnreadPayload{RoomId: ev.RoomId, UnreadCount: ev.UnreadCount})
		if err != nil {
			return nil, false
		}
		return &Frame{Event: EventRoomUnread, Data: data}, true
	default:
		return nil, false
	}
}
