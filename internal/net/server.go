package net

import (
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/l1jgo/pathd/internal/config"
	"go.uber.org/zap"
)

// Server accepts TCP and WebSocket connections and creates Sessions.
// New sessions reach the path worker through a channel.
type Server struct {
	listener net.Listener // nil when TCP is disabled
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	newConns chan *Session
	cfg      config.NetworkConfig
	log      *zap.Logger
	closeCh  chan struct{}
	closed   atomic.Bool
}

// NewServer listens on cfg.BindAddress. An empty address disables TCP; the
// server then only takes sessions from ServeWS.
func NewServer(cfg config.NetworkConfig, log *zap.Logger) (*Server, error) {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		newConns: make(chan *Session, 64),
		cfg:      cfg,
		log:      log,
		closeCh:  make(chan struct{}),
	}
	if cfg.BindAddress != "" {
		ln, err := net.Listen("tcp", cfg.BindAddress)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", cfg.BindAddress, err)
		}
		s.listener = ln
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	if s.listener == nil {
		return
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}
		s.attach(newTCPTransport(conn, s.cfg.MaxLineBytes, s.cfg.ReadTimeout))
	}
}

// ServeWS upgrades an HTTP request and attaches the connection as a session.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket 升級失敗", zap.Error(err))
		return
	}
	s.attach(newWSTransport(conn, s.cfg.MaxLineBytes, s.cfg.ReadTimeout))
}

func (s *Server) attach(tr transport) {
	id := s.nextID.Add(1)
	sess := newSession(tr, id, s.cfg.InQueueSize, s.cfg.OutQueueSize, s.cfg.WriteTimeout, s.log)
	sess.Start()

	s.log.Info(fmt.Sprintf("客戶端連線  session=%d  ip=%s  transport=%s", id, sess.IP, tr.Kind()))

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("連線佇列已滿，拒絕新連線")
		sess.Close()
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.closeCh)
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Addr returns the TCP listener's address, or nil when TCP is disabled.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
