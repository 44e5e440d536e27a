package proto

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{Type: FrameTypeRegister, Register: &RegisterFrame{
		AccountID: "alice",
		PublicKey: []byte{1, 2, 3},
		Username:  "Alice",
	}}
	require.NoError(t, in.Encode(&buf))

	var out Frame
	require.NoError(t, out.Decode(&buf))
	assert.Equal(t, FrameTypeRegister, out.Type)
	require.NotNil(t, out.Register)
	assert.Equal(t, "alice", out.Register.AccountID)
	assert.Equal(t, []byte{1, 2, 3}, out.Register.PublicKey)
}

func TestDecodeResetsReusedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Frame{Type: FrameTypeRegister, Register: &RegisterFrame{AccountID: "alice", PublicKey: []byte{1}}}).Encode(&buf))
	require.NoError(t, (&Frame{Type: FrameTypePing}).Encode(&buf))

	var f Frame
	require.NoError(t, f.Decode(&buf))
	require.NotNil(t, f.Register)
	require.NoError(t, f.Decode(&buf))
	assert.Equal(t, FrameTypePing, f.Type)
	assert.Nil(t, f.Register, "fields from the previous frame must not leak")
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, 2*1024*1024)
	buf.Write(lenBuf)

	var f Frame
	err := f.Decode(&buf)
	assert.ErrorIs(t, err, io.ErrShortBuffer)
	assert.False(t, IsMalformed(err))
}

func TestDecodeMalformedBody(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("{not json")
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(body)))
	buf.Write(lenBuf)
	buf.Write(body)

	var f Frame
	err := f.Decode(&buf)
	require.Error(t, err)
	assert.True(t, IsMalformed(err), "undecodable body must be classified as malformed")
}

func TestDecodeTruncatedStreamIsNotMalformed(t *testing.T) {
	var f Frame
	err := f.Decode(bytes.NewReader([]byte{0, 0}))
	require.Error(t, err)
	assert.False(t, IsMalformed(err), "transport truncation is not a parse error")
}
