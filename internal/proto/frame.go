package proto

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
)

// Frame types
const (
	FrameTypeRegister   = 1
	FrameTypeSend       = 2
	FrameTypeGetKey     = 3
	FrameTypePing       = 4
	FrameTypeRegistered = 5
	FrameTypePublicKey  = 6
	FrameTypeMessage    = 7
	FrameTypeSent       = 8
	FrameTypeError      = 9
	FrameTypePong       = 10
)

// Delivery status values carried in SentFrame
const (
	StatusDelivered = "delivered"
	StatusQueued    = "queued"
)

// Error codes carried in ErrorFrame
const (
	CodeParse      = "parse"
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
)

// RegisterFrame binds the sending connection to an account id
type RegisterFrame struct {
	AccountID string `json:"account_id"`
	PublicKey []byte `json:"public_key"`
	Username  string `json:"username,omitempty"`
}

// SendFrame carries an E2EE payload for another account (relay never decrypts)
type SendFrame struct {
	To               string `json:"to"`
	From             string `json:"from"`
	EncryptedMessage []byte `json:"encrypted_message"`
}

// GetKeyFrame asks for an account's public key
type GetKeyFrame struct {
	AccountID string `json:"account_id"`
}

// RegisteredFrame acknowledges a register
type RegisteredFrame struct {
	AccountID   string `json:"account_id"`
	OnlineUsers int    `json:"online_users"`
}

// PublicKeyFrame answers a GetKeyFrame
type PublicKeyFrame struct {
	AccountID string `json:"account_id"`
	PublicKey []byte `json:"public_key"`
	Username  string `json:"username,omitempty"`
}

// MessageFrame - relayed message (relay forwards without reading payload)
type MessageFrame struct {
	ID               string `json:"id"`
	From             string `json:"from"`
	EncryptedMessage []byte `json:"encrypted_message"`
	Timestamp        int64  `json:"timestamp"` // unix milliseconds
}

// SentFrame tells the sender what happened to its message
type SentFrame struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"` // StatusDelivered | StatusQueued
}

// ErrorFrame
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Frame is the top-level wire message
type Frame struct {
	Type       int              `json:"t"`
	Register   *RegisterFrame   `json:"r,omitempty"`
	Send       *SendFrame       `json:"s,omitempty"`
	GetKey     *GetKeyFrame     `json:"g,omitempty"`
	Registered *RegisteredFrame `json:"rd,omitempty"`
	PublicKey  *PublicKeyFrame  `json:"k,omitempty"`
	Message    *MessageFrame    `json:"m,omitempty"`
	Sent       *SentFrame       `json:"n,omitempty"`
	Error      *ErrorFrame      `json:"e,omitempty"`
}

// Encode writes a length-prefixed JSON frame to w
func (f *Frame) Encode(w io.Writer) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	// 4-byte big-endian length prefix
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode reads a length-prefixed JSON frame from r. The frame is reset before
// decoding so a reused Frame never carries fields over from a previous read.
func (f *Frame) Decode(r io.Reader) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > 1024*1024 { // 1MB max
		return io.ErrShortBuffer
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	*f = Frame{}
	return json.Unmarshal(data, f)
}

// IsMalformed reports whether a Decode error came from the frame body rather
// than the transport. The length prefix and body were already consumed, so the
// stream stays aligned and the session can keep reading.
func IsMalformed(err error) bool {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syn) || errors.As(err, &typ)
}
