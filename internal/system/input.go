package system

import (
	"errors"
	"time"

	coresys "github.com/l1jgo/pathd/internal/core/system"
	"github.com/l1jgo/pathd/internal/handler"
	"github.com/l1jgo/pathd/internal/net"
	"github.com/l1jgo/pathd/internal/net/packet"
	"go.uber.org/zap"
)

// InputSystem drains message queues from all sessions and dispatches them
// through the message registry. Each message runs to completion before the
// next, which is what keeps the registry and engine lock-free. Phase 0.
type InputSystem struct {
	newSessions <-chan *net.Session
	registry    *packet.Registry
	store       *net.SessionStore
	metrics     *handler.Metrics
	maxPerTick  int
	log         *zap.Logger
	failLog     *zap.Logger
}

func NewInputSystem(
	newSessions <-chan *net.Session,
	registry *packet.Registry,
	store *net.SessionStore,
	metrics *handler.Metrics,
	maxPerTick int,
	log *zap.Logger,
	failLog *zap.Logger,
) *InputSystem {
	return &InputSystem{
		newSessions: newSessions,
		registry:    registry,
		store:       store,
		metrics:     metrics,
		maxPerTick:  maxPerTick,
		log:         log,
		failLog:     failLog,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.newSessions:
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Drain messages from each session (up to maxPerTick per session)
	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			s.drainClosed(id, sess)
			continue
		}
		s.drain(sess)
	}

	// Early flush so writers start while later phases run.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case msg := <-sess.InQueue:
			s.dispatch(sess, msg)
		default:
			return
		}
	}
}

// drainClosed applies everything a disconnected client sent before leaving,
// so a terrain burst followed by a disconnect is never cut short. The session
// is dropped only after its reader stopped and the queue is empty.
func (s *InputSystem) drainClosed(id uint64, sess *net.Session) {
	select {
	case <-sess.ReadDone():
	default:
		// reader may still hand over one last message
		s.drain(sess)
		return
	}
	for {
		select {
		case msg := <-sess.InQueue:
			s.dispatch(sess, msg)
		default:
			s.store.Remove(id)
			s.log.Info("客戶端斷線", zap.Uint64("session", id))
			return
		}
	}
}

func (s *InputSystem) dispatch(sess *net.Session, msg []byte) {
	err := s.registry.Dispatch(sess, msg)
	switch {
	case err == nil:
	case errors.Is(err, packet.ErrMalformed):
		s.metrics.Malformed("")
		s.failLog.Warn("無法解析的訊息",
			zap.Uint64("session", sess.ID),
			zap.Int("size", len(msg)),
			zap.Error(err),
		)
	default:
		s.log.Debug("訊息分派錯誤",
			zap.Uint64("session", sess.ID),
			zap.Error(err),
		)
	}
}
