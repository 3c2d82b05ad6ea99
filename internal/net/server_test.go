package net

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/l1jgo/pathd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testNetworkConfig(bind string) config.NetworkConfig {
	cfg := config.Defaults().Network
	cfg.BindAddress = bind
	cfg.MaxLineBytes = 4096
	cfg.ReadTimeout = 5 * time.Second
	return cfg
}

func waitSession(t *testing.T, srv *Server) *Session {
	t.Helper()
	select {
	case sess := <-srv.NewSessions():
		return sess
	case <-time.After(2 * time.Second):
		t.Fatal("no session accepted")
		return nil
	}
}

func waitInbound(t *testing.T, sess *Session) string {
	t.Helper()
	select {
	case msg := <-sess.InQueue:
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message")
		return ""
	}
}

func TestTCPSessionRoundTrip(t *testing.T) {
	srv, err := NewServer(testNetworkConfig("127.0.0.1:0"), zap.NewNop())
	require.NoError(t, err)
	defer srv.Shutdown()
	go srv.AcceptLoop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	sess := waitSession(t, srv)
	_, err = conn.Write([]byte("{\"type\":\"stats\"}\n\n{\"type\":\"find_path\"}\n"))
	require.NoError(t, err)

	// blank lines are dropped, order is kept
	assert.Equal(t, `{"type":"stats"}`, waitInbound(t, sess))
	assert.Equal(t, `{"type":"find_path"}`, waitInbound(t, sess))

	sess.Send([]byte(`{"type":"stats_result"}`))
	assert.Equal(t, 1, sess.Pending())
	sess.FlushOutput()
	assert.Zero(t, sess.Pending())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\"stats_result\"}\n", line)
}

func TestTCPSessionClosesOnOversizedLine(t *testing.T) {
	srv, err := NewServer(testNetworkConfig("127.0.0.1:0"), zap.NewNop())
	require.NoError(t, err)
	defer srv.Shutdown()
	go srv.AcceptLoop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	sess := waitSession(t, srv)

	_, err = conn.Write([]byte(strings.Repeat("x", 10000) + "\n"))
	require.NoError(t, err)

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session should close after an oversized line")
	}
	assert.True(t, sess.IsClosed())
	sess.Send([]byte("ignored"))
	assert.Zero(t, sess.Pending())
}

func TestWebSocketSessionRoundTrip(t *testing.T) {
	srv, err := NewServer(testNetworkConfig(""), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, srv.Addr())

	httpSrv := httptest.NewServer(http.HandlerFunc(srv.ServeWS))
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	sess := waitSession(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("skipped")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stats"}`)))
	assert.Equal(t, `{"type":"stats"}`, waitInbound(t, sess))

	sess.Send([]byte(`{"type":"stats_result"}`))
	sess.FlushOutput()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, `{"type":"stats_result"}`, string(data))

	require.NoError(t, srv.Shutdown())
	require.NoError(t, srv.Shutdown())
}

func TestSessionStore(t *testing.T) {
	st := NewSessionStore()
	a := &Session{ID: 1, closeCh: make(chan struct{})}
	b := &Session{ID: 2, closeCh: make(chan struct{})}
	st.Add(a)
	st.Add(b)
	assert.Equal(t, 2, st.Count())
	assert.Same(t, b, st.Get(2))

	st.Remove(1)
	assert.Nil(t, st.Get(1))
	seen := 0
	st.ForEach(func(*Session) { seen++ })
	assert.Equal(t, 1, seen)
}
