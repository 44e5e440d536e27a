package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/SWAI-Ltd/Sealbox/internal/proto"
	"github.com/benbjohnson/clock"
)

// Relay is the single owner of all mutable relay state. Every inbound event
// (register including its queue flush, send, lookup, connection removal,
// sweep) runs start to finish under one lock, so no event ever observes a
// half-updated account or queue. State is in-memory only and lost on
// restart.
type Relay struct {
	mu     sync.Mutex
	dir    *Directory
	queue  *Queue
	router *Router
	clock  clock.Clock
}

// New creates a relay using the wall clock
func New(cfg Config) *Relay {
	return NewWithClock(cfg, clock.New())
}

// NewWithClock creates a relay on an explicit clock; tests pass a mock
func NewWithClock(cfg Config, clk clock.Clock) *Relay {
	dir := NewDirectory()
	queue := NewQueue(cfg.MaxQueueLen)
	return &Relay{
		dir:    dir,
		queue:  queue,
		router: NewRouter(dir, queue, clk.Now),
		clock:  clk,
	}
}

// Register attaches the connection to the account (creating it on first
// sight), then flushes any parked messages to that same connection in
// insertion order. Hand-off to the transport counts as delivery; there is no
// retry for a flushed message whose write fails. prev is the account id the
// connection was bound to before, if any; a handle belongs to at most one
// account, so the move happens in the same atomic step. Returns the number
// of known accounts.
func (r *Relay) Register(id string, publicKey []byte, username string, c Conn, prev string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total, err := r.dir.Register(id, publicKey, username, c, r.clock.Now())
	if err != nil {
		return 0, err
	}
	if prev != "" && prev != id {
		r.dir.RemoveConnection(prev, c)
	}
	if msgs := r.queue.Flush(id); len(msgs) > 0 {
		for _, m := range msgs {
			f := &proto.Frame{
				Type: proto.FrameTypeMessage,
				Message: &proto.MessageFrame{
					ID:               m.ID,
					From:             m.From,
					EncryptedMessage: m.EncryptedMessage,
					Timestamp:        m.Timestamp.UnixMilli(),
				},
			}
			if err := c.Send(f); err != nil {
				slog.Error("relay: failed to flush queued message", "err", err, "account", id, "msg", m.ID)
			}
		}
		slog.Info("relay: flushed offline queue", "account", id, "messages", len(msgs))
	}
	return total, nil
}

// Route forwards or enqueues one message (see Router.Route)
func (r *Relay) Route(from, to string, encrypted []byte) (*RouteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.router.Route(from, to, encrypted)
}

// Lookup returns the account registered under id
func (r *Relay) Lookup(id string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir.Lookup(id)
}

// DropConn detaches a closed connection from its account. Idempotent.
func (r *Relay) DropConn(id string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dir.RemoveConnection(id, c)
}

// SweepOnce evicts queued messages at or past the cutoff
func (r *Relay) SweepOnce(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Sweep(cutoff)
}

// Users returns the number of known account ids
func (r *Relay) Users() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir.Count()
}
