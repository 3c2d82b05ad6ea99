package net

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; the registry and engine are touched only from the
// path worker.
type Session struct {
	ID uint64
	tr transport

	InQueue  chan []byte // path worker reads messages from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	outBuf [][]byte // buffered responses, flushed by the output phase (worker only)

	writeTimeout time.Duration

	closeCh   chan struct{}
	readDone  chan struct{} // closed when readLoop has returned
	closeOnce sync.Once
	closed    atomic.Bool

	log *zap.Logger
}

func newSession(tr transport, id uint64, inSize, outSize int, writeTimeout time.Duration, log *zap.Logger) *Session {
	return &Session{
		ID:           id,
		tr:           tr,
		InQueue:      make(chan []byte, inSize),
		OutQueue:     make(chan []byte, outSize),
		IP:           tr.RemoteAddr(),
		writeTimeout: writeTimeout,
		closeCh:      make(chan struct{}),
		readDone:     make(chan struct{}),
		log:          log.With(zap.Uint64("session", id), zap.String("transport", tr.Kind())),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a message for sending. Nothing is written until FlushOutput.
// Called only from the path worker, so outBuf needs no lock.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput moves buffered messages to OutQueue for the writeLoop.
// Non-blocking: a full OutQueue disconnects the session (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// SessionID returns the connection id used in logs and events.
func (s *Session) SessionID() uint64 { return s.ID }

// Pending returns the number of buffered, unflushed messages.
func (s *Session) Pending() int { return len(s.outBuf) }

// Close shuts the session down once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.tr.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// ReadDone is closed once the reader has stopped. From then on InQueue only
// shrinks.
func (s *Session) ReadDone() <-chan struct{} {
	return s.readDone
}

// readLoop pushes every inbound message onto InQueue. It blocks when the
// queue is full instead of dropping, so a slow worker throttles only this
// client and per-session ordering is kept.
func (s *Session) readLoop() {
	defer close(s.readDone)
	defer s.Close()

	for {
		msg, err := s.tr.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !errors.Is(err, io.EOF) {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}
		if len(msg) == 0 {
			continue
		}

		select {
		case s.InQueue <- msg:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop drains OutQueue to the transport.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if err := s.tr.WriteMessage(data, s.writeTimeout); err != nil {
				if !s.closed.Load() {
					s.log.Debug("寫入錯誤", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
