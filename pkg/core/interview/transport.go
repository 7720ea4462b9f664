package interview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hireloop/interview-go/pkg/core"
)

const defaultConnectTimeout = 15 * time.Second

// MessageKind discriminates inbound transport messages.
type MessageKind int

const (
	// TextMessage is a structured control frame.
	TextMessage MessageKind = iota + 1
	// BinaryMessage is raw encoded audio.
	BinaryMessage
)

// TransportMessage is one inbound frame, already normalized to a plain byte
// slice regardless of how the underlying transport represented it.
type TransportMessage struct {
	Kind MessageKind
	Data []byte
}

// CloseInfo describes how the connection ended. Err is nil for a normal
// closure.
type CloseInfo struct {
	Code   int
	Reason string
	Err    error
}

// Transport is the duplex connection used by a Session. Implementations
// deliver inbound frames on Messages and exactly one CloseInfo on Done.
type Transport interface {
	Connect(ctx context.Context) error
	SendText(data []byte) error
	SendBinary(data []byte) error
	Messages() <-chan TransportMessage
	Done() <-chan CloseInfo
	Close(code int, reason string) error
}

// WebsocketTransport is the gorilla/websocket implementation of Transport.
type WebsocketTransport struct {
	url    string
	header http.Header
	logger *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	messages  chan TransportMessage
	done      chan CloseInfo
	stop      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewWebsocketTransport creates a transport for the given ws(s) URL.
func NewWebsocketTransport(wsURL string, logger *slog.Logger) *WebsocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketTransport{
		url:      wsURL,
		logger:   logger,
		messages: make(chan TransportMessage, 64),
		done:     make(chan CloseInfo, 1),
		stop:     make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read loop.
func (t *WebsocketTransport) Connect(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, t.url, t.header)
	if err != nil {
		if resp != nil {
			return core.NewConnectionLostError("websocket dial failed (status "+resp.Status+")", err)
		}
		return core.NewConnectionLostError("websocket dial failed", err)
	}

	t.writeMu.Lock()
	t.conn = conn
	t.writeMu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn) {
	defer close(t.messages)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.deliverClose(err)
			return
		}

		var kind MessageKind
		switch messageType {
		case websocket.TextMessage:
			kind = TextMessage
		case websocket.BinaryMessage:
			kind = BinaryMessage
		default:
			continue
		}

		// Copy the payload: gorilla reuses its read buffer, and upstream
		// code must never see transport-level representations.
		msg := TransportMessage{Kind: kind, Data: append([]byte(nil), data...)}
		select {
		case t.messages <- msg:
		case <-t.stop:
			return
		}
	}
}

func (t *WebsocketTransport) deliverClose(err error) {
	info := CloseInfo{Code: websocket.CloseAbnormalClosure, Err: err}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		info.Code = ce.Code
		info.Reason = ce.Text
		if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
			info.Err = nil
		}
	}
	if t.closed.Load() {
		// Locally initiated teardown reads as a normal closure.
		info = CloseInfo{Code: websocket.CloseNormalClosure}
	}

	select {
	case t.done <- info:
	default:
	}
}

// Messages yields inbound frames.
func (t *WebsocketTransport) Messages() <-chan TransportMessage {
	return t.messages
}

// Done yields the close notification.
func (t *WebsocketTransport) Done() <-chan CloseInfo {
	return t.done
}

// SendText writes one structured control frame.
func (t *WebsocketTransport) SendText(data []byte) error {
	return t.write(websocket.TextMessage, data)
}

// SendBinary writes one raw audio frame. Frames are delivered in write
// order, so server-side reassembly follows capture order.
func (t *WebsocketTransport) SendBinary(data []byte) error {
	return t.write(websocket.BinaryMessage, data)
}

func (t *WebsocketTransport) write(messageType int, data []byte) error {
	if t.closed.Load() {
		return core.NewConnectionLostError("transport is closed", nil)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return core.NewConnectionLostError("transport is not connected", nil)
	}
	if err := t.conn.WriteMessage(messageType, data); err != nil {
		return core.NewConnectionLostError("websocket write failed", err)
	}
	return nil
}

// Close sends a close frame with the given code and tears the connection
// down. Safe to call more than once.
func (t *WebsocketTransport) Close(code int, reason string) error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.stop)
		t.writeMu.Lock()
		if t.conn != nil {
			_ = t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason), time.Now().Add(2*time.Second))
			_ = t.conn.Close()
		}
		t.writeMu.Unlock()
	})
	return nil
}
