package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"redial/internal/connstate"
	"redial/pkg/broadcast"
	"redial/pkg/core"
)

// WebSocket is a transport over a real websocket connection. Both the initial
// connection and every reconnect attempt dial the configured URL; a socket that
// closes after it was open fires the disconnect signal.
type WebSocket struct {
	config     core.WebSocketConfig
	state      connstate.State
	handler    *wsEventHandler
	disconnect *broadcast.Signal
	leave      *broadcast.Signal
	logger     zerolog.Logger

	mu     sync.Mutex
	conn   *gws.Conn
	openCh chan struct{}
	wg     sync.WaitGroup
	dials  atomic.Int64
}

type wsEventHandler struct {
	gws.BuiltinEventHandler
	transport *WebSocket
}

type helloFrame struct {
	Type   string    `json:"type"`
	Dial   int64     `json:"dial"`
	SentAt time.Time `json:"sent_at"`
}

// NewWebSocket creates a websocket transport. Nothing is dialed until Establish.
func NewWebSocket(config core.WebSocketConfig) *WebSocket {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	w := &WebSocket{
		config:     config,
		disconnect: broadcast.New(),
		leave:      broadcast.New(),
		logger:     zerolog.Nop(),
	}
	w.handler = &wsEventHandler{transport: w}
	return w
}

// SetLogger configures the logger for the transport.
func (w *WebSocket) SetLogger(logger zerolog.Logger) {
	w.logger = logger
}

func (h *wsEventHandler) OnOpen(socket *gws.Conn) {
	w := h.transport

	w.mu.Lock()
	if w.conn != socket {
		w.mu.Unlock()
		return
	}
	w.state.Store(core.StateConnected)
	select {
	case <-w.openCh:
	default:
		close(w.openCh)
	}
	w.mu.Unlock()

	w.logger.Info().Str("url", w.config.URL).Msg("websocket connected")
}

func (h *wsEventHandler) OnClose(socket *gws.Conn, err error) {
	w := h.transport

	w.mu.Lock()
	current := w.conn == socket
	if current {
		w.conn = nil
	}
	w.mu.Unlock()

	if !current {
		return
	}

	prev := w.state.Store(core.StateDisconnected)
	w.logger.Warn().
		Err(err).
		Str("url", w.config.URL).
		Msg("websocket disconnected")

	if prev == core.StateConnected && !w.leave.Closed() {
		w.disconnect.Fire()
	}
}

func (h *wsEventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *wsEventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	h.transport.logger.Debug().Int("size", len(message.Bytes())).Msg("received websocket message")
}

// Establish dials the configured URL and waits for the socket to open.
func (w *WebSocket) Establish(ctx context.Context) error {
	return w.dial(ctx)
}

// Reconnect makes one dial attempt.
func (w *WebSocket) Reconnect(ctx context.Context) error {
	return w.dial(ctx)
}

func (w *WebSocket) dial(ctx context.Context) error {
	if w.leave.Closed() {
		return core.ErrTransportClosed
	}
	if !w.state.CompareAndSwap(core.StateDisconnected, core.StateConnecting) {
		current := w.state.Load()
		if current == core.StateConnected {
			return nil
		}
		return fmt.Errorf("invalid state for dial: %s", current)
	}

	leaveCh, unsubscribe := w.leave.Subscribe()
	defer unsubscribe()

	n := w.dials.Add(1)
	openCh := make(chan struct{})
	w.mu.Lock()
	w.openCh = openCh
	w.mu.Unlock()

	socket, _, err := gws.NewClient(w.handler, &gws.ClientOption{
		Addr:             w.config.URL,
		HandshakeTimeout: w.config.HandshakeTimeout,
	})
	if err != nil {
		w.state.Store(core.StateDisconnected)
		return fmt.Errorf("dial websocket: %w", err)
	}

	w.mu.Lock()
	w.conn = socket
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		socket.ReadLoop()
	}()

	select {
	case <-openCh:
	case <-ctx.Done():
		w.drop(socket)
		return ctx.Err()
	case <-leaveCh:
		w.drop(socket)
		return core.ErrTransportClosed
	}

	if err := w.SendJSON(helloFrame{Type: "hello", Dial: n, SentAt: time.Now()}); err != nil {
		w.logger.Warn().Err(err).Msg("send hello frame")
	}
	return nil
}

// drop closes socket without reporting a disconnect.
func (w *WebSocket) drop(socket *gws.Conn) {
	w.mu.Lock()
	if w.conn == socket {
		w.conn = nil
	}
	w.mu.Unlock()

	_ = socket.NetConn().Close()
	w.state.Store(core.StateDisconnected)
}

// SendJSON marshals v and sends it as a text frame.
func (w *WebSocket) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil || w.state.Load() != core.StateConnected {
		return core.ErrNotConnected
	}
	return conn.WriteMessage(gws.OpcodeText, data)
}

// Disconnect closes the live socket. The close handler fires the disconnect signal.
func (w *WebSocket) Disconnect() error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return core.ErrNotConnected
	}
	return conn.NetConn().Close()
}

// Leave fires the leave signal, closes the socket and waits for its read loop.
func (w *WebSocket) Leave() {
	if !w.leave.Close() {
		return
	}

	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn != nil {
		_ = conn.NetConn().Close()
	}
	w.state.Store(core.StateDisconnected)
	w.wg.Wait()
	w.logger.Info().Str("url", w.config.URL).Msg("left session")
}

// DisconnectSignal fires on every dropped connection.
func (w *WebSocket) DisconnectSignal() *broadcast.Signal { return w.disconnect }

// LeaveSignal is closed by Leave.
func (w *WebSocket) LeaveSignal() *broadcast.Signal { return w.leave }

// State returns the socket-level connection state.
func (w *WebSocket) State() core.ConnectionState {
	return w.state.Load()
}

// Dials returns how many dial attempts were made.
func (w *WebSocket) Dials() int64 {
	return w.dials.Load()
}
