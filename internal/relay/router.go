package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/SWAI-Ltd/Sealbox/internal/proto"
	"github.com/google/uuid"
)

// RouteResult tells the sender what happened to its message
type RouteResult struct {
	MessageID string
	Status    string // proto.StatusDelivered | proto.StatusQueued
}

// Router decides, per send, whether to fan out to live connections or park
// the message in the offline queue. Not safe for concurrent use; the owning
// Relay serializes access.
type Router struct {
	dir   *Directory
	queue *Queue
	now   func() time.Time
	newID func() string
}

// NewRouter creates a router over the given directory and queue
func NewRouter(dir *Directory, queue *Queue, now func() time.Time) *Router {
	return &Router{dir: dir, queue: queue, now: now, newID: uuid.NewString}
}

// Route forwards the encrypted payload to every open connection of the
// recipient, or enqueues it when none exist. A recipient nobody has ever
// registered still gets a queue entry; it may register later. "Delivered"
// means handed to at least one open transport, nothing more.
func (r *Router) Route(from, to string, encrypted []byte) (*RouteResult, error) {
	if from == "" {
		return nil, fmt.Errorf("send: from: %w", ErrValidation)
	}
	if to == "" {
		return nil, fmt.Errorf("send: to: %w", ErrValidation)
	}
	if len(encrypted) == 0 {
		return nil, fmt.Errorf("send: encrypted message: %w", ErrValidation)
	}

	now := r.now()
	id := r.newID()
	packet := &proto.Frame{
		Type: proto.FrameTypeMessage,
		Message: &proto.MessageFrame{
			ID:               id,
			From:             from,
			EncryptedMessage: encrypted,
			Timestamp:        now.UnixMilli(),
		},
	}

	if acct, err := r.dir.Lookup(to); err == nil {
		delivered := 0
		for _, c := range acct.OpenConns() {
			if err := c.Send(packet); err != nil {
				slog.Error("router: failed to forward to connection", "err", err, "to", to, "conn", c.RemoteAddr())
			} else {
				delivered++
			}
		}
		if delivered > 0 {
			return &RouteResult{MessageID: id, Status: proto.StatusDelivered}, nil
		}
	}

	r.queue.Enqueue(to, QueuedMessage{
		ID:               id,
		From:             from,
		EncryptedMessage: encrypted,
		Timestamp:        now,
	})
	return &RouteResult{MessageID: id, Status: proto.StatusQueued}, nil
}
