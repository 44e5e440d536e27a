package relay

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/SWAI-Ltd/Sealbox/internal/proto"
)

// fakeConn records every frame handed to it.
type fakeConn struct {
	addr     string
	closed   bool
	failSend bool
	sent     []*proto.Frame
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{addr: addr}
}

func (f *fakeConn) Send(fr *proto.Frame) error {
	if f.closed || f.failSend {
		return io.ErrClosedPipe
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeConn) Open() bool         { return !f.closed }
func (f *fakeConn) RemoteAddr() string { return f.addr }

// messages returns the relayed message bodies recorded so far.
func (f *fakeConn) messages() []*proto.MessageFrame {
	var out []*proto.MessageFrame
	for _, fr := range f.sent {
		if fr.Type == proto.FrameTypeMessage && fr.Message != nil {
			out = append(out, fr.Message)
		}
	}
	return out
}

// scriptedConn feeds a fixed sequence of inbound frames (or errors) to the
// session loop and then reports EOF.
type scriptedConn struct {
	fakeConn
	inbound []any // *proto.Frame or error
}

// errMalformed mimics what Conn.Recv surfaces for an undecodable body.
var errMalformed = &json.SyntaxError{}

func (s *scriptedConn) Recv(f *proto.Frame) error {
	if len(s.inbound) == 0 {
		return io.EOF
	}
	next := s.inbound[0]
	s.inbound = s.inbound[1:]
	switch v := next.(type) {
	case *proto.Frame:
		*f = *v
		return nil
	case error:
		return v
	}
	return errors.New("bad script entry")
}

func (s *scriptedConn) Close() error {
	s.closed = true
	return nil
}
