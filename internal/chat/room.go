package chat

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/carechat/internal/api"
	"github.com/mbeoliero/carechat/internal/socket"
	"github.com/mbeoliero/carechat/pkg/errcode"
)

// RoomOpener resolves service requests to rooms. Satisfied by the api
// client.
type RoomOpener interface {
	OpenRoom(ctx context.Context, serviceRequestId int64) (*api.OpenRoomResponse, error)
}

// Resolution is the outcome of resolving a service request to a room
type Resolution struct {
	RoomId      int64
	CompanyId   int64
	UnreadCount *int64 // caller's unread count in the room, when the backend returns membership
	Fallback    bool   // true when resolution failed and the caller-supplied room id was used
}

// Resolver turns a service-request id into a joined chat room. Resolution
// is a single backend call with no automatic retries; the backend
// guarantees the same request id always yields the same room.
type Resolver struct {
	opener RoomOpener
	mgr    *socket.Manager
}

// NewResolver creates a room resolver
func NewResolver(opener RoomOpener, mgr *socket.Manager) *Resolver {
	return &Resolver{opener: opener, mgr: mgr}
}

// Resolve opens (or creates) the room for a service request and joins its
// push channel. On failure it falls back to a previously known room id when
// the caller supplies one; otherwise the error is surfaced as-is.
func (r *Resolver) Resolve(ctx context.Context, serviceRequestId, fallbackRoomId int64) (*Resolution, error) {
	resp, err := r.opener.OpenRoom(ctx, serviceRequestId)
	if err != nil {
		if fallbackRoomId != 0 {
			log.CtxWarn(ctx, "room resolution failed, using known room: service_request_id=%d, room_id=%d, error=%v",
				serviceRequestId, fallbackRoomId, err)
			r.join(ctx, fallbackRoomId)
			return &Resolution{RoomId: fallbackRoomId, Fallback: true}, nil
		}
		return nil, errcode.ErrRoomResolve.Wrap(err)
	}

	res := &Resolution{
		RoomId:    resp.Room.Id,
		CompanyId: resp.Room.CompanyId,
	}
	if resp.Member != nil {
		n := resp.Member.UnreadCount
		res.UnreadCount = &n
	}

	r.join(ctx, res.RoomId)
	return res, nil
}

// join subscribes to the room channel. A join failure is non-fatal: the
// manager is already degraded and live updates arrive via long-poll.
func (r *Resolver) join(ctx context.Context, roomId int64) {
	if err := r.mgr.JoinRoom(ctx, roomId); err != nil {
		log.CtxWarn(ctx, "join room channel failed: room_id=%d, error=%v", roomId, err)
	}
}
