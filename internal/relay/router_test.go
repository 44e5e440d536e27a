package relay

import (
	"testing"
	"time"

	"github.com/SWAI-Ltd/Sealbox/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() (*Router, *Directory, *Queue) {
	dir := NewDirectory()
	queue := NewQueue(0)
	return NewRouter(dir, queue, time.Now), dir, queue
}

func TestRouteValidation(t *testing.T) {
	r, _, _ := newTestRouter()

	_, err := r.Route("", "bob", []byte("x"))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = r.Route("alice", "", []byte("x"))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = r.Route("alice", "bob", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRouteFansOutToAllOpenConns(t *testing.T) {
	r, dir, queue := newTestRouter()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")
	_, err := dir.Register("bob", []byte("pk"), "", c1, time.Now())
	require.NoError(t, err)
	_, err = dir.Register("bob", []byte("pk"), "", c2, time.Now())
	require.NoError(t, err)

	res, err := r.Route("alice", "bob", []byte("sealed"))
	require.NoError(t, err)
	assert.Equal(t, proto.StatusDelivered, res.Status)

	m1 := c1.messages()
	m2 := c2.messages()
	require.Len(t, m1, 1)
	require.Len(t, m2, 1)
	// Both sessions get a copy of the same packet
	assert.Equal(t, res.MessageID, m1[0].ID)
	assert.Equal(t, m1[0].ID, m2[0].ID)
	assert.Equal(t, "alice", m1[0].From)
	assert.Equal(t, []byte("sealed"), m1[0].EncryptedMessage)
	assert.Zero(t, queue.Pending("bob"), "live delivery must not enqueue")
}

func TestRouteSkipsClosedConns(t *testing.T) {
	r, dir, _ := newTestRouter()
	open := newFakeConn("open")
	stale := newFakeConn("stale")
	stale.closed = true
	_, err := dir.Register("bob", []byte("pk"), "", open, time.Now())
	require.NoError(t, err)
	_, err = dir.Register("bob", []byte("pk"), "", stale, time.Now())
	require.NoError(t, err)

	res, err := r.Route("alice", "bob", []byte("sealed"))
	require.NoError(t, err)
	assert.Equal(t, proto.StatusDelivered, res.Status)
	assert.Len(t, open.messages(), 1)
	assert.Empty(t, stale.sent)
}

func TestRouteQueuesWhenRecipientOffline(t *testing.T) {
	r, dir, queue := newTestRouter()
	stale := newFakeConn("stale")
	stale.closed = true
	_, err := dir.Register("bob", []byte("pk"), "", stale, time.Now())
	require.NoError(t, err)

	res, err := r.Route("alice", "bob", []byte("sealed"))
	require.NoError(t, err)
	assert.Equal(t, proto.StatusQueued, res.Status)
	assert.Equal(t, 1, queue.Pending("bob"))
}

func TestRouteQueuesForUnknownRecipient(t *testing.T) {
	// Nobody has ever registered "bob"; the message still parks for a
	// future registration.
	r, _, queue := newTestRouter()

	res, err := r.Route("alice", "bob", []byte("sealed"))
	require.NoError(t, err)
	assert.Equal(t, proto.StatusQueued, res.Status)
	assert.Equal(t, 1, queue.Pending("bob"))
}

func TestRouteQueuesWhenEveryWriteFails(t *testing.T) {
	r, dir, queue := newTestRouter()
	flaky := newFakeConn("flaky")
	flaky.failSend = true
	_, err := dir.Register("bob", []byte("pk"), "", flaky, time.Now())
	require.NoError(t, err)

	res, err := r.Route("alice", "bob", []byte("sealed"))
	require.NoError(t, err)
	assert.Equal(t, proto.StatusQueued, res.Status)
	assert.Equal(t, 1, queue.Pending("bob"))
}

func TestRouteGeneratesDistinctIDs(t *testing.T) {
	r, _, _ := newTestRouter()
	r1, err := r.Route("alice", "bob", []byte("a"))
	require.NoError(t, err)
	r2, err := r.Route("alice", "bob", []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, r1.MessageID, r2.MessageID)
}
