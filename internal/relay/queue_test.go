package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgAt(id string, ts time.Time) QueuedMessage {
	return QueuedMessage{ID: id, From: "alice", EncryptedMessage: []byte("x"), Timestamp: ts}
}

func TestEnqueueFlushOrder(t *testing.T) {
	q := NewQueue(0)
	now := time.Now()
	q.Enqueue("bob", msgAt("m1", now))
	q.Enqueue("bob", msgAt("m2", now))
	q.Enqueue("bob", msgAt("m3", now))

	msgs := q.Flush("bob")
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "m3", msgs[2].ID)

	// Flush clears: a second flush finds nothing
	assert.Nil(t, q.Flush("bob"))
	assert.Zero(t, q.Pending("bob"))
}

func TestFlushUnknownAccount(t *testing.T) {
	q := NewQueue(0)
	assert.Nil(t, q.Flush("nobody"))
}

func TestSweepDropsOnlyExpired(t *testing.T) {
	q := NewQueue(0)
	now := time.Now()
	day := 24 * time.Hour
	q.Enqueue("bob", msgAt("fresh", now))
	q.Enqueue("bob", msgAt("sixdays", now.Add(-6*day)))
	q.Enqueue("bob", msgAt("eightdays", now.Add(-8*day)))

	dropped := q.Sweep(now.Add(-7 * day))
	assert.Equal(t, 1, dropped)

	msgs := q.Flush("bob")
	require.Len(t, msgs, 2)
	assert.Equal(t, "fresh", msgs[0].ID)
	assert.Equal(t, "sixdays", msgs[1].ID)
}

func TestSweepRemovesEmptiedAccounts(t *testing.T) {
	q := NewQueue(0)
	now := time.Now()
	q.Enqueue("bob", msgAt("old", now.Add(-10*24*time.Hour)))

	dropped := q.Sweep(now.Add(-7 * 24 * time.Hour))
	assert.Equal(t, 1, dropped)
	// Key must be gone entirely, not left as an empty entry
	assert.Nil(t, q.Flush("bob"))
}

func TestSweepNoOpOnFreshMessages(t *testing.T) {
	q := NewQueue(0)
	now := time.Now()
	q.Enqueue("bob", msgAt("m1", now))
	assert.Zero(t, q.Sweep(now.Add(-7*24*time.Hour)))
	assert.Equal(t, 1, q.Pending("bob"))
}

func TestQueueCapDropsOldest(t *testing.T) {
	q := NewQueue(2)
	now := time.Now()
	q.Enqueue("bob", msgAt("m1", now))
	q.Enqueue("bob", msgAt("m2", now))
	q.Enqueue("bob", msgAt("m3", now))

	msgs := q.Flush("bob")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m3", msgs[1].ID)
}
