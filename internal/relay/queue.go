package relay

import (
	"time"
)

// QueuedMessage is an undelivered message parked for an offline account.
// Immutable once created.
type QueuedMessage struct {
	ID               string
	From             string
	EncryptedMessage []byte
	Timestamp        time.Time
}

// Queue holds per-account ordered buffers of undelivered messages, insertion
// order = delivery order. An empty buffer is never stored; a missing key
// means nothing pending. Not safe for concurrent use; the owning Relay
// serializes access.
type Queue struct {
	pending map[string][]QueuedMessage
	maxLen  int // per-account cap; 0 means unbounded
}

// NewQueue creates an empty queue. maxLen caps each account's buffer
// (0 = unbounded); when full, the oldest message is dropped to admit the new
// one.
func NewQueue(maxLen int) *Queue {
	return &Queue{pending: make(map[string][]QueuedMessage), maxLen: maxLen}
}

// Enqueue appends a message to the account's buffer, creating it if absent
func (q *Queue) Enqueue(accountID string, msg QueuedMessage) {
	buf := q.pending[accountID]
	if q.maxLen > 0 && len(buf) >= q.maxLen {
		buf = buf[len(buf)-q.maxLen+1:]
	}
	q.pending[accountID] = append(buf, msg)
}

// Flush returns the account's buffer in insertion order and clears it.
// Returns nil if nothing is pending.
func (q *Queue) Flush(accountID string) []QueuedMessage {
	msgs, ok := q.pending[accountID]
	if !ok {
		return nil
	}
	delete(q.pending, accountID)
	return msgs
}

// Pending returns the number of messages parked for an account
func (q *Queue) Pending(accountID string) int {
	return len(q.pending[accountID])
}

// Sweep drops every message whose timestamp is not after cutoff. Accounts
// left with an empty buffer are removed entirely. Returns the number of
// messages dropped.
func (q *Queue) Sweep(cutoff time.Time) int {
	dropped := 0
	for id, msgs := range q.pending {
		kept := msgs[:0:0]
		for _, m := range msgs {
			if m.Timestamp.After(cutoff) {
				kept = append(kept, m)
			}
		}
		dropped += len(msgs) - len(kept)
		if len(kept) == 0 {
			delete(q.pending, id)
		} else {
			q.pending[id] = kept
		}
	}
	return dropped
}
