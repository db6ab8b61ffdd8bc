package chat

import (
	"sync"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/carechat/internal/api"
	"github.com/mbeoliero/carechat/internal/socket"
)

// Store is the process-wide unread badge cache: a mapping from room id (or
// the logical service-request id while the room is unresolved) to an unread
// count. Counts never go negative and a server-pushed absolute count always
// overrides a locally bumped estimate. Explicitly constructed and injected;
// not a hidden global.
type Store struct {
	mu      sync.RWMutex
	counts  map[int64]int64
	aliases map[int64]int64 // service request id -> room id
	seeded  bool
}

// NewStore creates an empty unread store
func NewStore() *Store {
	return &Store{
		counts:  make(map[int64]int64),
		aliases: make(map[int64]int64),
	}
}

// resolve follows a request-id alias to its room id, if registered
func (s *Store) resolve(id int64) int64 {
	if roomId, ok := s.aliases[id]; ok {
		return roomId
	}
	return id
}

// SetCount sets an absolute count, clamped at zero
func (s *Store) SetCount(id int64, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	s.counts[s.resolve(id)] = n
}

// Bump applies a relative delta, clamped at zero
func (s *Store) Bump(id int64, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.resolve(id)
	n := s.counts[key] + delta
	if n < 0 {
		n = 0
	}
	s.counts[key] = n
}

// Get reads a count, defaulting to zero for unknown ids
func (s *Store) Get(id int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[s.resolve(id)]
}

// SeedInitialCounts bulk-initializes counts from the room list fetch.
// Idempotent: only the first call takes effect.
func (s *Store) SeedInitialCounts(items []api.RoomListItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return
	}
	s.seeded = true

	for _, item := range items {
		n := item.UnreadCount
		if n < 0 {
			n = 0
		}
		s.counts[item.RoomId] = n
		if item.ServiceRequestId != 0 {
			s.aliases[item.ServiceRequestId] = item.RoomId
		}
	}
}

// Alias records that a service request id resolved to a room id, merging
// any count accumulated under the request id into the room entry.
func (s *Store) Alias(serviceRequestId, roomId int64) {
	if serviceRequestId == 0 || roomId == 0 || serviceRequestId == roomId {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[serviceRequestId] = roomId

	if n, ok := s.counts[serviceRequestId]; ok {
		delete(s.counts, serviceRequestId)
		if _, exists := s.counts[roomId]; !exists {
			s.counts[roomId] = n
		}
	}
}

// ApplyPush applies a room:unread push. An absolute count from the server
// wins outright; a push without a count means one new unseen message.
func (s *Store) ApplyPush(p *socket.UnreadPayload) {
	if p == nil {
		return
	}

	id := p.RoomId
	if id == 0 {
		id = p.ServiceRequestId
	}
	if id == 0 {
		return
	}
	if p.ServiceRequestId != 0 && p.RoomId != 0 {
		s.Alias(p.ServiceRequestId, p.RoomId)
	}

	if p.UnreadCount != nil {
		s.SetCount(id, *p.UnreadCount)
		return
	}
	s.Bump(id, 1)
}

// BindUnread subscribes the store to room:unread pushes. One binding per
// manager/store pair, done at wiring time: the badge stays live with no
// chat surface open, and a push is applied exactly once no matter how many
// surfaces are. Returns the unbind function.
func BindUnread(mgr *socket.Manager, store *Store) func() {
	return mgr.On(socket.EventRoomUnread, func(frame *socket.Frame) {
		p, err := socket.DecodeUnread(frame.Data)
		if err != nil {
			log.Warn("decode unread push failed: %v", err)
			return
		}
		store.ApplyPush(p)
	})
}

// Reset clears all state, for test isolation
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[int64]int64)
	s.aliases = make(map[int64]int64)
	s.seeded = false
}
