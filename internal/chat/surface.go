package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/carechat/internal/config"
	"github.com/mbeoliero/carechat/internal/socket"
	"github.com/mbeoliero/carechat/pkg/errcode"
)

// State is the lifecycle state of a chat surface
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateJoined
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateJoined:
		return "joined"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ChatAPI is the full backend surface a chat surface needs. Satisfied by
// the api client.
type ChatAPI interface {
	RoomOpener
	HistoryFetcher
	Sender
	ReadMarker
	socket.EventPoller
}

type eventKind int

const (
	evFrame eventKind = iota + 1
	evScrollTop
	evScrollBottom
	evBackwardDone
)

type event struct {
	kind      eventKind
	frame     *socket.Frame
	prepended int
}

// Surface is one mounted chat view (panel or modal). Lifecycle:
// Closed -> Opening -> Joined -> Ready -> Closed, with Opening -> Error
// terminal for the mount when room resolution fails without a fallback.
//
// Socket pushes, scroll sentinels and fetch completions all enter a single
// buffered channel consumed by one goroutine, so state reductions are
// strictly sequential even though their sources interleave.
type Surface struct {
	cfg      *config.ChatConfig
	client   ChatAPI
	mgr      *socket.Manager
	store    *Store
	reporter *Reporter
	resolver *Resolver
	senderId string

	serviceRequestId int64
	fallbackRoomId   int64

	mu       sync.Mutex
	state    State
	roomId   int64
	history  *History
	composer *Composer
	atBottom bool

	events     chan event
	done       chan struct{}
	pollCancel context.CancelFunc
	unsubs     []func()
	closed     atomic.Bool

	// OnUpdate is invoked after every reduction that may have changed the
	// visible list or badge. Optional.
	OnUpdate func()
	// OnPrepended is invoked with the number of older messages prepended,
	// so the view can re-anchor its scroll offset. Optional.
	OnPrepended func(n int)
}

// NewSurface creates a surface for one service request's chat
func NewSurface(cfg *config.ChatConfig, client ChatAPI, mgr *socket.Manager, store *Store,
	senderId string, serviceRequestId, fallbackRoomId int64) *Surface {

	return &Surface{
		cfg:              cfg,
		client:           client,
		mgr:              mgr,
		store:            store,
		reporter:         NewReporter(client, store),
		resolver:         NewResolver(client, mgr),
		senderId:         senderId,
		serviceRequestId: serviceRequestId,
		fallbackRoomId:   fallbackRoomId,
		events:           make(chan event, cfg.EventQueueSize),
		done:             make(chan struct{}),
	}
}

// Open resolves the room, joins it, loads initial history and starts the
// reducer loop. An Error state is terminal for this mount; the caller must
// construct a new surface to retry.
func (s *Surface) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return errcode.ErrSurfaceClosed
	}
	s.state = StateOpening
	s.mu.Unlock()

	res, err := s.resolver.Resolve(ctx, s.serviceRequestId, s.fallbackRoomId)
	if err != nil {
		s.setState(StateError)
		return err
	}

	s.mu.Lock()
	s.roomId = res.RoomId
	s.history = NewHistory(s.client, res.RoomId, s.cfg.PageSize)
	s.composer = NewComposer(s.client, s.history, res.RoomId, s.senderId)
	s.state = StateJoined
	s.atBottom = true
	s.mu.Unlock()

	s.store.Alias(s.serviceRequestId, res.RoomId)
	if res.UnreadCount != nil {
		s.store.SetCount(res.RoomId, *res.UnreadCount)
	}

	unsub := s.mgr.On(socket.EventMessageNew, s.forward)
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()

	go s.run()

	histErr := s.history.FetchInitial(ctx)
	if histErr != nil {
		// Non-fatal: the surface opens with an inline error; pagination
		// stays off for the session
		log.CtxWarn(ctx, "initial history load failed: room_id=%d, error=%v", res.RoomId, histErr)
	}

	s.setState(StateReady)

	// Opening a surface with loaded history is a mark-read trigger. A
	// failed load skips it; the count clears on the next qualifying
	// trigger instead of ahead of messages the user never saw.
	if histErr == nil {
		if err := s.reporter.MarkRead(ctx, res.RoomId); err != nil {
			log.CtxDebug(ctx, "mark read on open failed: room_id=%d, error=%v", res.RoomId, err)
		}
	}

	// The poll loop doubles as the reconnect watchdog, so it runs for the
	// surface's whole lifetime rather than only when the open-time dial
	// failed
	pollCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.pollCancel = cancel
	s.mu.Unlock()
	go s.mgr.PollLoop(pollCtx, s.client, res.RoomId)

	return nil
}

// forward pushes a socket frame into the event queue. Runs on the socket
// read loop; drops frames once the surface is closed or the queue is full.
func (s *Surface) forward(frame *socket.Frame) {
	if s.closed.Load() {
		return
	}
	select {
	case s.events <- event{kind: evFrame, frame: frame}:
	case <-s.done:
	default:
		log.Warn("surface event queue full, dropping frame: event=%s", frame.Event)
	}
}

// run is the reducer loop: the only goroutine that touches scroll state
func (s *Surface) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.reduce(ev)
			if s.OnUpdate != nil {
				s.OnUpdate()
			}
		}
	}
}

// reduce applies one event to the surface state
func (s *Surface) reduce(ev event) {
	switch ev.kind {
	case evFrame:
		s.reduceFrame(ev.frame)
	case evScrollTop:
		s.reduceScrollTop()
	case evScrollBottom:
		s.reduceScrollBottom()
	case evBackwardDone:
		if ev.prepended > 0 && s.OnPrepended != nil {
			s.OnPrepended(ev.prepended)
		}
	}
}

func (s *Surface) reduceFrame(frame *socket.Frame) {
	switch frame.Event {
	case socket.EventMessageNew:
		msg, err := socket.DecodeMessage(frame.Data)
		if err != nil {
			log.Warn("decode message push failed: %v", err)
			return
		}

		s.mu.Lock()
		roomId := s.roomId
		history := s.history
		atBottom := s.atBottom
		s.mu.Unlock()

		if history == nil || msg.RoomId != roomId {
			return
		}

		// A push echo of a message this client just sent dedupes here by
		// server id
		if !history.Apply(FromRecord(msg, StatusDelivered)) {
			return
		}

		if atBottom {
			go s.bestEffortMarkRead(roomId)
		}
	}
}

func (s *Surface) reduceScrollTop() {
	s.mu.Lock()
	s.atBottom = false
	history := s.history
	s.mu.Unlock()

	if history == nil || !history.HasMore() {
		return
	}

	// The fetch runs off the reducer goroutine; History guards against a
	// second in-flight page, and the completion re-enters as an event
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := history.FetchBackward(ctx)
		if err != nil || s.closed.Load() {
			return
		}
		select {
		case s.events <- event{kind: evBackwardDone, prepended: n}:
		case <-s.done:
		}
	}()
}

func (s *Surface) reduceScrollBottom() {
	s.mu.Lock()
	wasAtBottom := s.atBottom
	s.atBottom = true
	roomId := s.roomId
	s.mu.Unlock()

	// Edge-triggered: exactly one mark-read per reach of the bottom
	if !wasAtBottom && roomId != 0 {
		go s.bestEffortMarkRead(roomId)
	}
}

func (s *Surface) bestEffortMarkRead(roomId int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.reporter.MarkRead(ctx, roomId); err == nil && s.OnUpdate != nil {
		s.OnUpdate()
	}
}

// ScrollTop signals that the view reached the top sentinel
func (s *Surface) ScrollTop() {
	s.enqueue(event{kind: evScrollTop})
}

// ScrollBottom signals that the view reached the bottom sentinel
func (s *Surface) ScrollBottom() {
	s.enqueue(event{kind: evScrollBottom})
}

func (s *Surface) enqueue(ev event) {
	if s.closed.Load() {
		return
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Send submits a message through the composer. The optimistic entry
// renders immediately and the view snaps to the newest message.
func (s *Surface) Send(ctx context.Context, text string) (Message, error) {
	s.mu.Lock()
	composer := s.composer
	state := s.state
	s.mu.Unlock()

	if composer == nil || (state != StateReady && state != StateJoined) {
		return Message{}, errcode.ErrSurfaceClosed
	}

	s.ScrollBottom()
	msg, err := composer.Send(ctx, text)
	if s.OnUpdate != nil {
		s.OnUpdate()
	}
	return msg, err
}

// Retry re-submits a failed optimistic message by its temporary id
func (s *Surface) Retry(ctx context.Context, tempId string) (Message, error) {
	s.mu.Lock()
	composer := s.composer
	s.mu.Unlock()

	if composer == nil {
		return Message{}, errcode.ErrSurfaceClosed
	}
	msg, err := composer.Retry(ctx, tempId)
	if s.OnUpdate != nil {
		s.OnUpdate()
	}
	return msg, err
}

// Close dismisses the surface, firing a best-effort read receipt
func (s *Surface) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	roomId := s.roomId
	wasReady := s.state == StateReady
	s.state = StateClosed
	cancel := s.pollCancel
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	close(s.done)
	if cancel != nil {
		cancel()
	}
	for _, off := range unsubs {
		off()
	}

	if wasReady && roomId != 0 {
		go s.bestEffortMarkRead(roomId)
	}
}

// State returns the current lifecycle state
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomId returns the resolved room id, zero before resolution
func (s *Surface) RoomId() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomId
}

// Messages returns the current chronological message list
func (s *Surface) Messages() []Message {
	s.mu.Lock()
	history := s.history
	s.mu.Unlock()

	if history == nil {
		return nil
	}
	return history.Messages()
}

// History exposes the loader, for pagination state inspection
func (s *Surface) History() *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

// Unread returns the badge count for this surface's room
func (s *Surface) Unread() int64 {
	s.mu.Lock()
	roomId := s.roomId
	s.mu.Unlock()

	if roomId != 0 {
		return s.store.Get(roomId)
	}
	return s.store.Get(s.serviceRequestId)
}

func (s *Surface) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
