package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"livesession/internal/core/ports"

	"github.com/gorilla/websocket"
)

// Close codes the lifecycle distinguishes.
const (
	CloseNormal          = websocket.CloseNormalClosure
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseAbnormal        = websocket.CloseAbnormalClosure
	CloseUnauthorized    = 4001
	CloseForbidden       = 4003
)

type DialerConfig struct {
	HandshakeTimeout    time.Duration
	WriteTimeout        time.Duration
	MaxMessageSizeBytes int64
	ReadBufferSize      int
	WriteBufferSize     int
	Header              http.Header
}

// WebSocketDialer opens gorilla/websocket transports.
type WebSocketDialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	readLimit    int64
	header       http.Header
}

func NewWebSocketDialer(cfg DialerConfig) *WebSocketDialer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
		writeTimeout: cfg.WriteTimeout,
		readLimit:    cfg.MaxMessageSizeBytes,
		header:       cfg.Header,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (ports.Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return &wsTransport{conn: conn, writeTimeout: d.writeTimeout}, nil
}

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// ReadMessage returns the next data frame. Every read failure is reported as
// a *ports.CloseError; drops without a close frame carry CloseAbnormal.
func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err == nil {
		return data, nil
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return nil, &ports.CloseError{Code: ce.Code, Reason: ce.Text}
	}
	return nil, &ports.CloseError{Code: CloseAbnormal, Reason: err.Error()}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) WritePing() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *wsTransport) SetPongHandler(fn func()) {
	t.conn.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}

// Close sends a close frame with code (unless the code is reserved for
// local use, like CloseAbnormal) and releases the connection.
func (t *wsTransport) Close(code int, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		if code != CloseAbnormal && code != websocket.CloseNoStatusReceived {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeTimeout))
		}
		err = t.conn.Close()
	})
	return err
}

// closeErrorOf extracts the close code of a transport failure.
func closeErrorOf(err error) *ports.CloseError {
	var ce *ports.CloseError
	if errors.As(err, &ce) {
		return ce
	}
	reason := "connection lost"
	if err != nil {
		reason = err.Error()
	}
	return &ports.CloseError{Code: CloseAbnormal, Reason: reason}
}

func isAuthRejection(code int) bool {
	return code == ClosePolicyViolation || code == CloseUnauthorized || code == CloseForbidden
}
