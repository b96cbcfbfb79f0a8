// Package signaltest provides a scriptable session endpoint for tests.
package signaltest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const waitTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server accepts session clients and hands each connection to the test.
type Server struct {
	URL string

	srv   *httptest.Server
	conns chan *Conn

	mu   sync.Mutex
	open []*Conn
}

func NewServer(path string) *Server {
	s := &Server{conns: make(chan *Conn, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handle)
	s.srv = httptest.NewServer(mux)
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http") + path
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &Conn{
		ws:     ws,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.open = append(s.open, c)
	s.mu.Unlock()

	// Reading keeps the default ping handler answering the client.
	go func() {
		defer close(c.done)
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			c.frames <- data
		}
	}()
	s.conns <- c
}

// Accept waits for the next client connection.
func (s *Server) Accept(tb testing.TB) *Conn {
	tb.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(waitTimeout):
		tb.Fatal("timed out waiting for a client connection")
		return nil
	}
}

// Close drops every open connection and stops the listener.
func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.open {
		c.ws.Close()
	}
	s.mu.Unlock()
	s.srv.Close()
}

type Conn struct {
	ws     *websocket.Conn
	frames chan []byte
	done   chan struct{}

	writeMu sync.Mutex
}

// ReadFrame waits for the next client frame and decodes it.
func (c *Conn) ReadFrame(tb testing.TB) map[string]interface{} {
	tb.Helper()
	select {
	case data := <-c.frames:
		var frame map[string]interface{}
		if err := json.Unmarshal(data, &frame); err != nil {
			tb.Fatalf("client sent invalid JSON %q: %v", data, err)
		}
		return frame
	case <-time.After(waitTimeout):
		tb.Fatal("timed out waiting for a client frame")
		return nil
	}
}

// ReadFrameOfType skips frames until one of the given type arrives.
func (c *Conn) ReadFrameOfType(tb testing.TB, frameType string) map[string]interface{} {
	tb.Helper()
	for {
		frame := c.ReadFrame(tb)
		if frame["type"] == frameType {
			return frame
		}
	}
}

func (c *Conn) Send(tb testing.TB, frame string) {
	tb.Helper()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		tb.Fatalf("failed to send frame: %v", err)
	}
}

// CloseWith sends a close frame with code and closes the connection.
func (c *Conn) CloseWith(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.ws.Close()
}

// Drop closes the connection without a close frame.
func (c *Conn) Drop() {
	c.ws.Close()
}

// Closed is closed once the client side goes away.
func (c *Conn) Closed() <-chan struct{} {
	return c.done
}
