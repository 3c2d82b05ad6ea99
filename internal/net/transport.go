package net

import (
	"bufio"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// transport moves whole messages. Sessions do not care whether a message
// arrived as a TCP line or a WebSocket text frame.
type transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte, timeout time.Duration) error
	Close() error
	RemoteAddr() string
	Kind() string
}

type tcpTransport struct {
	conn     net.Conn
	r        *bufio.Reader
	maxBytes int
	idle     time.Duration
}

func newTCPTransport(conn net.Conn, maxBytes int, idle time.Duration) *tcpTransport {
	return &tcpTransport{
		conn:     conn,
		r:        bufio.NewReaderSize(conn, 64*1024),
		maxBytes: maxBytes,
		idle:     idle,
	}
}

func (t *tcpTransport) ReadMessage() ([]byte, error) {
	if t.idle > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.idle))
	}
	return ReadFrame(t.r, t.maxBytes)
}

func (t *tcpTransport) WriteMessage(data []byte, timeout time.Duration) error {
	if timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return WriteFrame(t.conn, data)
}

func (t *tcpTransport) Close() error       { return t.conn.Close() }
func (t *tcpTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
func (t *tcpTransport) Kind() string       { return "tcp" }

type wsTransport struct {
	conn *websocket.Conn
	idle time.Duration
}

func newWSTransport(conn *websocket.Conn, maxBytes int, idle time.Duration) *wsTransport {
	conn.SetReadLimit(int64(maxBytes))
	return &wsTransport{conn: conn, idle: idle}
}

// ReadMessage skips binary frames; the protocol is text only.
func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		if t.idle > 0 {
			t.conn.SetReadDeadline(time.Now().Add(t.idle))
		}
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// WriteMessage is only called from the session's writeLoop, which satisfies
// gorilla's one-writer rule.
func (t *wsTransport) WriteMessage(data []byte, timeout time.Duration) error {
	if timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error       { return t.conn.Close() }
func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
func (t *wsTransport) Kind() string       { return "ws" }
