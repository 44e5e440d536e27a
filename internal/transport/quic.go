package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SWAI-Ltd/Sealbox/internal/proto"
	"github.com/quic-go/quic-go"
)

// Default idle timeout: 5 minutes (QUIC default is 30s, too short for a
// session that may sit idle between messages)
var defaultQuicConfig = &quic.Config{
	MaxIdleTimeout: 5 * time.Minute,
}

const ProtoID = "sealbox/1"

// Conn wraps a QUIC connection with frame read/write and open-state tracking.
// A Conn whose stream has failed reports Open() == false even before the
// owning session loop has reaped it.
type Conn struct {
	Stream quic.Stream
	Conn   quic.Connection

	sendMu sync.Mutex // frames from fan-out and acks share one stream
	closed atomic.Bool
}

// NewConnWithConn wraps a QUIC stream and connection
func NewConnWithConn(stream quic.Stream, conn quic.Connection) *Conn {
	return &Conn{Stream: stream, Conn: conn}
}

// NewConn wraps a QUIC stream (connection may be nil for dial)
func NewConn(stream quic.Stream) *Conn {
	return &Conn{Stream: stream}
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() string {
	if c.Conn != nil {
		return c.Conn.RemoteAddr().String()
	}
	return "unknown"
}

// Send encodes and writes a frame. A write failure marks the Conn closed.
func (c *Conn) Send(f *proto.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return io.ErrClosedPipe
	}
	if err := f.Encode(c.Stream); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

// Recv reads and decodes a frame. A transport-level failure marks the Conn
// closed; a malformed frame body does not, since the stream stays aligned.
func (c *Conn) Recv(f *proto.Frame) error {
	err := f.Decode(c.Stream)
	if err != nil && !proto.IsMalformed(err) {
		c.closed.Store(true)
	}
	return err
}

// Open reports whether the transport still accepts writes
func (c *Conn) Open() bool {
	return !c.closed.Load()
}

// Close tears the session down. Reads are cancelled so a blocked Recv
// returns, and the owning QUIC connection is closed when we hold it.
func (c *Conn) Close() error {
	c.closed.Store(true)
	c.Stream.CancelRead(0)
	err := c.Stream.Close()
	if c.Conn != nil {
		c.Conn.CloseWithError(0, "")
	}
	return err
}

// generateTLSConfig creates a self-signed cert for development
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{ProtoID},
	}, nil
}

// Server runs a QUIC listener
type Server struct {
	Listener *quic.Listener
	Handler  func(*Conn)
}

// ListenQUIC starts a QUIC server with handler set before accepting.
func ListenQUIC(ctx context.Context, addr string, handler func(*Conn)) (*Server, error) {
	tlsCfg, err := generateTLSConfig()
	if err != nil {
		return nil, err
	}
	listener, err := quic.ListenAddr(addr, tlsCfg, defaultQuicConfig)
	if err != nil {
		return nil, err
	}
	s := &Server{Listener: listener, Handler: handler}
	go s.acceptLoop(ctx)
	return s, nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		sess, err := s.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		go func() {
			stream, err := sess.AcceptStream(ctx)
			if err != nil {
				return
			}
			if s.Handler != nil {
				s.Handler(NewConnWithConn(stream, sess))
			} else {
				io.Copy(io.Discard, stream)
			}
		}()
	}
}

// LocalAddr returns the address of the QUIC listener
func (s *Server) LocalAddr() string {
	return s.Listener.Addr().String()
}

// Close stops accepting new sessions
func (s *Server) Close() error {
	return s.Listener.Close()
}

// DialQUIC connects to a QUIC server (skips cert verification for dev)
func DialQUIC(ctx context.Context, addr string) (*Conn, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ProtoID},
	}
	sess, err := quic.DialAddr(ctx, addr, tlsCfg, defaultQuicConfig)
	if err != nil {
		return nil, err
	}
	stream, err := sess.OpenStreamSync(ctx)
	if err != nil {
		sess.CloseWithError(0, "")
		return nil, err
	}
	return NewConnWithConn(stream, sess), nil
}
