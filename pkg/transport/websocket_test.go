package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redial/pkg/core"
)

type echoServer struct {
	gws.BuiltinEventHandler

	mu     sync.Mutex
	conns  []*gws.Conn
	hellos []helloFrame
}

func (s *echoServer) OnOpen(socket *gws.Conn) {
	s.mu.Lock()
	s.conns = append(s.conns, socket)
	s.mu.Unlock()
}

func (s *echoServer) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	var hello helloFrame
	if err := sonic.Unmarshal(message.Bytes(), &hello); err == nil {
		s.mu.Lock()
		s.hellos = append(s.hellos, hello)
		s.mu.Unlock()
	}
}

func (s *echoServer) helloCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hellos)
}

func (s *echoServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.NetConn().Close()
	}
	s.conns = nil
}

func newEchoServer(t *testing.T) (*echoServer, *httptest.Server, string) {
	t.Helper()
	handler := &echoServer{}
	upgrader := gws.NewUpgrader(handler, &gws.ServerOption{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r)
		if err != nil {
			return
		}
		go socket.ReadLoop()
	}))
	t.Cleanup(srv.Close)
	return handler, srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewWebSocket_Defaults(t *testing.T) {
	ws := NewWebSocket(core.WebSocketConfig{URL: "ws://127.0.0.1:1"})

	assert.Equal(t, 5*time.Second, ws.config.HandshakeTimeout)
	assert.Equal(t, core.StateDisconnected, ws.State())
	assert.ErrorIs(t, ws.Disconnect(), core.ErrNotConnected)
	assert.ErrorIs(t, ws.SendJSON(map[string]string{"a": "b"}), core.ErrNotConnected)
}

func TestWebSocket_EstablishSendsHello(t *testing.T) {
	server, _, url := newEchoServer(t)
	ws := NewWebSocket(core.WebSocketConfig{URL: url})
	defer ws.Leave()

	require.NoError(t, ws.Establish(context.Background()))
	assert.Equal(t, core.StateConnected, ws.State())
	assert.Eventually(t, func() bool { return server.helloCount() == 1 }, time.Second, 5*time.Millisecond)

	// Establishing an open connection is a no-op.
	require.NoError(t, ws.Reconnect(context.Background()))
	assert.Equal(t, int64(1), ws.Dials())
}

func TestWebSocket_ServerDropFiresDisconnect(t *testing.T) {
	server, _, url := newEchoServer(t)
	ws := NewWebSocket(core.WebSocketConfig{URL: url})
	defer ws.Leave()

	disc, cancel := ws.DisconnectSignal().Subscribe()
	defer cancel()

	require.NoError(t, ws.Establish(context.Background()))
	server.dropAll()

	select {
	case <-disc:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect signal not fired")
	}
	assert.Eventually(t, func() bool { return ws.State() == core.StateDisconnected }, time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Reconnect(context.Background()))
	assert.Equal(t, core.StateConnected, ws.State())
	assert.Equal(t, int64(2), ws.Dials())
}

func TestWebSocket_LocalDisconnect(t *testing.T) {
	_, _, url := newEchoServer(t)
	ws := NewWebSocket(core.WebSocketConfig{URL: url})
	defer ws.Leave()

	disc, cancel := ws.DisconnectSignal().Subscribe()
	defer cancel()

	require.NoError(t, ws.Establish(context.Background()))
	require.NoError(t, ws.Disconnect())

	select {
	case <-disc:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect signal not fired")
	}
}

func TestWebSocket_ReconnectToDeadServer(t *testing.T) {
	_, srv, url := newEchoServer(t)
	srv.Close()

	ws := NewWebSocket(core.WebSocketConfig{URL: url, HandshakeTimeout: 200 * time.Millisecond})
	defer ws.Leave()

	err := ws.Reconnect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial websocket")
	assert.Equal(t, core.StateDisconnected, ws.State())
}

func TestWebSocket_LeaveIsFinal(t *testing.T) {
	_, _, url := newEchoServer(t)
	ws := NewWebSocket(core.WebSocketConfig{URL: url})

	disc, cancel := ws.DisconnectSignal().Subscribe()
	defer cancel()

	require.NoError(t, ws.Establish(context.Background()))
	ws.Leave()
	ws.Leave()

	assert.Equal(t, core.StateDisconnected, ws.State())
	assert.ErrorIs(t, ws.Reconnect(context.Background()), core.ErrTransportClosed)

	select {
	case <-disc:
		t.Fatal("leave must not report a disconnect")
	case <-time.After(50 * time.Millisecond):
	}
}
