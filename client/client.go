// Package client provides the Sealbox developer SDK: register an account id,
// send sealed payloads, and receive inbound messages on a channel. The SDK
// moves ciphertext only; sealing and opening payloads is the caller's job
// (see internal/crypto for nacl-box helpers).
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SWAI-Ltd/Sealbox/internal/proto"
	"github.com/SWAI-Ltd/Sealbox/internal/transport"
)

const (
	// DefaultMessageBuffer is the buffer size for the Messages() channel.
	DefaultMessageBuffer = 64
)

// ErrClosed is returned when using a client after Close.
var ErrClosed = errors.New("client closed")

// RelayError is an error frame sent back by the relay.
type RelayError struct {
	Code    string
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay error (%s): %s", e.Code, e.Message)
}

// Message is an inbound relayed message. The payload is still encrypted.
type Message struct {
	ID        string
	From      string
	Payload   []byte
	Timestamp time.Time
}

// SendResult reports how the relay disposed of a sent message.
type SendResult struct {
	MessageID string
	// Queued is true when the recipient was offline and the message was
	// parked for its next registration.
	Queued bool
}

// AccountKey is the answer to a GetPublicKey call.
type AccountKey struct {
	AccountID string
	PublicKey []byte
	Username  string
}

// Config configures the Sealbox client.
type Config struct {
	// RelayAddr is the relay address (e.g. "localhost:6131").
	RelayAddr string
	// MessageBuffer sets the capacity of Messages(); 0 uses DefaultMessageBuffer.
	MessageBuffer int
}

// Client is a single session to a relay. One request is in flight at a time;
// inbound relayed messages arrive on Messages() independently of requests.
type Client struct {
	conn *transport.Conn
	msgs chan Message
	resp chan *proto.Frame
	done chan struct{}

	mu     sync.Mutex // serializes requests and guards closed
	closed bool
}

// Dial connects to a relay.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RelayAddr == "" {
		return nil, errors.New("client: relay address required")
	}
	buf := cfg.MessageBuffer
	if buf <= 0 {
		buf = DefaultMessageBuffer
	}
	conn, err := transport.DialQUIC(ctx, cfg.RelayAddr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn: conn,
		msgs: make(chan Message, buf),
		resp: make(chan *proto.Frame, 1),
		done: make(chan struct{}),
	}
	go c.recvLoop()
	return c, nil
}

func (c *Client) recvLoop() {
	defer close(c.done)
	defer close(c.msgs)
	for {
		var f proto.Frame
		if err := c.conn.Recv(&f); err != nil {
			if proto.IsMalformed(err) {
				continue
			}
			return
		}
		if f.Type == proto.FrameTypeMessage && f.Message != nil {
			m := Message{
				ID:        f.Message.ID,
				From:      f.Message.From,
				Payload:   f.Message.EncryptedMessage,
				Timestamp: time.UnixMilli(f.Message.Timestamp),
			}
			select {
			case c.msgs <- m:
			default:
				// channel full; drop rather than stall the session
			}
			continue
		}
		fc := f
		select {
		case c.resp <- &fc:
		default:
			// unsolicited response frame; drop
		}
	}
}

// roundTrip sends one frame and waits for the relay's answer to it.
func (c *Client) roundTrip(ctx context.Context, f *proto.Frame) (*proto.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if err := c.conn.Send(f); err != nil {
		return nil, err
	}
	select {
	case r := <-c.resp:
		if r.Type == proto.FrameTypeError && r.Error != nil {
			return nil, &RelayError{Code: r.Error.Code, Message: r.Error.Message}
		}
		return r, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Register binds this session to an account id. Messages parked while the
// account was offline are flushed onto Messages() right away. Returns the
// relay's known-account count.
func (c *Client) Register(ctx context.Context, accountID string, publicKey []byte, username string) (int, error) {
	r, err := c.roundTrip(ctx, &proto.Frame{Type: proto.FrameTypeRegister, Register: &proto.RegisterFrame{
		AccountID: accountID,
		PublicKey: publicKey,
		Username:  username,
	}})
	if err != nil {
		return 0, err
	}
	if r.Type != proto.FrameTypeRegistered || r.Registered == nil {
		return 0, fmt.Errorf("client: unexpected reply type %d to register", r.Type)
	}
	return r.Registered.OnlineUsers, nil
}

// Send relays a sealed payload to another account.
func (c *Client) Send(ctx context.Context, from, to string, encrypted []byte) (*SendResult, error) {
	r, err := c.roundTrip(ctx, &proto.Frame{Type: proto.FrameTypeSend, Send: &proto.SendFrame{
		To:               to,
		From:             from,
		EncryptedMessage: encrypted,
	}})
	if err != nil {
		return nil, err
	}
	if r.Type != proto.FrameTypeSent || r.Sent == nil {
		return nil, fmt.Errorf("client: unexpected reply type %d to send", r.Type)
	}
	return &SendResult{
		MessageID: r.Sent.MessageID,
		Queued:    r.Sent.Status == proto.StatusQueued,
	}, nil
}

// GetPublicKey fetches the registered key for an account id.
func (c *Client) GetPublicKey(ctx context.Context, accountID string) (*AccountKey, error) {
	r, err := c.roundTrip(ctx, &proto.Frame{Type: proto.FrameTypeGetKey, GetKey: &proto.GetKeyFrame{
		AccountID: accountID,
	}})
	if err != nil {
		return nil, err
	}
	if r.Type != proto.FrameTypePublicKey || r.PublicKey == nil {
		return nil, fmt.Errorf("client: unexpected reply type %d to get key", r.Type)
	}
	return &AccountKey{
		AccountID: r.PublicKey.AccountID,
		PublicKey: r.PublicKey.PublicKey,
		Username:  r.PublicKey.Username,
	}, nil
}

// Ping checks the relay round-trip.
func (c *Client) Ping(ctx context.Context) error {
	r, err := c.roundTrip(ctx, &proto.Frame{Type: proto.FrameTypePing})
	if err != nil {
		return err
	}
	if r.Type != proto.FrameTypePong {
		return fmt.Errorf("client: unexpected reply type %d to ping", r.Type)
	}
	return nil
}

// Messages returns the channel of inbound relayed messages. It is closed
// when the session ends.
func (c *Client) Messages() <-chan Message {
	return c.msgs
}

// Close shuts down the session.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
