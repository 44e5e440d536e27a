package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/SWAI-Ltd/Sealbox/internal/discovery"
	"github.com/SWAI-Ltd/Sealbox/internal/proto"
	"github.com/SWAI-Ltd/Sealbox/internal/transport"
)

// sessionConn is what the dispatch loop needs from a transport session
type sessionConn interface {
	Conn
	Recv(*proto.Frame) error
	Close() error
}

// session tracks per-connection state: the account id bound at the most
// recent successful register on this connection, used to detach the handle
// on close.
type session struct {
	conn      sessionConn
	accountID string
}

// Server binds a Relay to inbound transport events, the periodic sweep, and
// the read-only HTTP status probe.
type Server struct {
	Relay *Relay

	cfg      Config
	qsrv     *transport.Server
	statusLn net.Listener
	status   *http.Server
	disc     *discovery.Announcer
}

// Run starts a relay server: QUIC listener, cleanup sweeper, status endpoint
// and, when configured, mDNS announcement. It shuts down when ctx is
// cancelled.
func Run(ctx context.Context, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{Relay: New(cfg), cfg: cfg}

	qsrv, err := transport.ListenQUIC(ctx, cfg.ListenAddr, s.handleConn)
	if err != nil {
		return nil, err
	}
	s.qsrv = qsrv

	go NewSweeper(cfg.SweepInterval, cfg.Retention, s.Relay.clock, s.Relay.SweepOnce).Run(ctx)

	if cfg.StatusAddr != "" {
		if err := s.startStatus(); err != nil {
			qsrv.Close()
			return nil, err
		}
	}
	if cfg.Advertise {
		_, port, err := discovery.ParseAddr(qsrv.LocalAddr())
		if err == nil {
			s.disc, err = discovery.Announce(cfg.Name, port)
		}
		if err != nil {
			slog.Error("relay: mDNS announce failed", "err", err)
		}
	}

	context.AfterFunc(ctx, func() { s.Close() })
	slog.Info("relay listening", "addr", qsrv.LocalAddr(), "retention", cfg.Retention, "sweep", cfg.SweepInterval)
	return s, nil
}

// Addr returns the QUIC listen address
func (s *Server) Addr() string {
	return s.qsrv.LocalAddr()
}

// StatusAddr returns the HTTP status listen address, or "" when disabled
func (s *Server) StatusAddr() string {
	if s.statusLn == nil {
		return ""
	}
	return s.statusLn.Addr().String()
}

// Close stops all listeners. Safe to call more than once.
func (s *Server) Close() error {
	if s.disc != nil {
		s.disc.Close()
	}
	if s.status != nil {
		s.status.Close()
	}
	return s.qsrv.Close()
}

func (s *Server) handleConn(c *transport.Conn) {
	s.serve(c)
}

// serve is the per-connection loop: one frame at a time, dispatched to
// completion. A malformed frame produces one error frame and the session
// keeps going; only transport failure ends it.
func (s *Server) serve(c sessionConn) {
	sess := &session{conn: c}
	defer func() {
		if sess.accountID != "" {
			s.Relay.DropConn(sess.accountID, c)
		}
		c.Close()
	}()

	var f proto.Frame
	for {
		if err := c.Recv(&f); err != nil {
			if proto.IsMalformed(err) {
				slog.Debug("server: malformed frame", "remote", c.RemoteAddr(), "err", err)
				c.Send(errorFrame(proto.CodeParse, "malformed frame"))
				continue
			}
			return
		}
		s.dispatch(sess, &f)
	}
}

func (s *Server) dispatch(sess *session, f *proto.Frame) {
	c := sess.conn
	switch f.Type {
	case proto.FrameTypeRegister:
		reg := f.Register
		if reg == nil {
			c.Send(errorFrame(proto.CodeValidation, "register: missing body"))
			return
		}
		online, err := s.Relay.Register(reg.AccountID, reg.PublicKey, reg.Username, c, sess.accountID)
		if err != nil {
			c.Send(errorFrame(proto.CodeValidation, err.Error()))
			return
		}
		sess.accountID = reg.AccountID
		c.Send(&proto.Frame{Type: proto.FrameTypeRegistered, Registered: &proto.RegisteredFrame{
			AccountID:   reg.AccountID,
			OnlineUsers: online,
		}})

	case proto.FrameTypeSend:
		sn := f.Send
		if sn == nil {
			c.Send(errorFrame(proto.CodeValidation, "send: missing body"))
			return
		}
		res, err := s.Relay.Route(sn.From, sn.To, sn.EncryptedMessage)
		if err != nil {
			c.Send(errorFrame(proto.CodeValidation, err.Error()))
			return
		}
		c.Send(&proto.Frame{Type: proto.FrameTypeSent, Sent: &proto.SentFrame{
			MessageID: res.MessageID,
			Status:    res.Status,
		}})

	case proto.FrameTypeGetKey:
		g := f.GetKey
		if g == nil || g.AccountID == "" {
			c.Send(errorFrame(proto.CodeValidation, "get key: missing account id"))
			return
		}
		acct, err := s.Relay.Lookup(g.AccountID)
		if err != nil {
			c.Send(errorFrame(proto.CodeNotFound, err.Error()))
			return
		}
		c.Send(&proto.Frame{Type: proto.FrameTypePublicKey, PublicKey: &proto.PublicKeyFrame{
			AccountID: acct.ID,
			PublicKey: acct.PublicKey,
			Username:  acct.Username,
		}})

	case proto.FrameTypePing:
		c.Send(&proto.Frame{Type: proto.FrameTypePong})

	default:
		// Unknown kinds are dropped without an error frame
		slog.Debug("server: ignoring unknown frame type", "type", f.Type, "remote", c.RemoteAddr())
	}
}

func errorFrame(code, message string) *proto.Frame {
	return &proto.Frame{Type: proto.FrameTypeError, Error: &proto.ErrorFrame{Code: code, Message: message}}
}

// statusPayload is the body of the read-only HTTP probe
type statusPayload struct {
	Status    string `json:"status"`
	Users     int    `json:"users"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) startStatus() error {
	ln, err := net.Listen("tcp", s.cfg.StatusAddr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusPayload{
			Status:    "ok",
			Users:     s.Relay.Users(),
			Timestamp: s.Relay.clock.Now().UTC().Format(time.RFC3339),
		})
	})
	s.statusLn = ln
	s.status = &http.Server{Handler: mux}
	go s.status.Serve(ln)
	return nil
}
