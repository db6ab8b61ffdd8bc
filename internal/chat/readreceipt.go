package chat

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/carechat/pkg/errcode"
)

// ReadMarker acknowledges messages as read. Satisfied by the api client.
type ReadMarker interface {
	MarkRead(ctx context.Context, roomId int64) error
}

// Reporter issues mark-read calls and zeroes the local unread count on
// success. A failed call leaves the count untouched; the next qualifying
// trigger (reopen, scroll to bottom) retries it. No automatic retry.
type Reporter struct {
	marker ReadMarker
	store  *Store
}

// NewReporter creates a read receipt reporter
func NewReporter(marker ReadMarker, store *Store) *Reporter {
	return &Reporter{marker: marker, store: store}
}

// MarkRead acknowledges everything in the room up to now
func (r *Reporter) MarkRead(ctx context.Context, roomId int64) error {
	if err := r.marker.MarkRead(ctx, roomId); err != nil {
		log.CtxDebug(ctx, "mark read failed: room_id=%d, error=%v", roomId, err)
		return errcode.ErrMarkReadFailed.Wrap(err)
	}

	r.store.SetCount(roomId, 0)
	return nil
}
