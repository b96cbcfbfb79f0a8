package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type fakeTransport struct {
	inbound chan []byte
	fail    chan error
	closed  chan struct{}

	mu         sync.Mutex
	writes     [][]byte
	pings      int
	closeCodes []int
	pong       func()
	autoPong   bool
	closeOnce  sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		fail:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case err := <-t.fail:
		return nil, err
	case <-t.closed:
		return nil, &ports.CloseError{Code: CloseAbnormal, Reason: "closed locally"}
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-t.closed:
		return errors.New("write on closed transport")
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) WritePing() error {
	t.mu.Lock()
	t.pings++
	pong, auto := t.pong, t.autoPong
	t.mu.Unlock()
	if auto && pong != nil {
		pong()
	}
	return nil
}

func (t *fakeTransport) SetPongHandler(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pong = fn
}

func (t *fakeTransport) Close(code int, reason string) error {
	t.mu.Lock()
	t.closeCodes = append(t.closeCodes, code)
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// push delivers one inbound frame.
func (t *fakeTransport) push(frame string) {
	t.inbound <- []byte(frame)
}

// drop makes the next read fail with the given close code.
func (t *fakeTransport) drop(code int, reason string) {
	t.fail <- &ports.CloseError{Code: code, Reason: reason}
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) firstCloseCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.closeCodes) == 0 {
		return 0
	}
	return t.closeCodes[0]
}

func (t *fakeTransport) sent() []OutboundFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]OutboundFrame, 0, len(t.writes))
	for _, w := range t.writes {
		var f OutboundFrame
		if err := json.Unmarshal(w, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func (t *fakeTransport) sentTypes() []string {
	var types []string
	for _, f := range t.sent() {
		types = append(types, f.Type)
	}
	return types
}

func (t *fakeTransport) pingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pings
}

func (t *fakeTransport) waitSent(tb testing.TB, n int) []OutboundFrame {
	tb.Helper()
	require.Eventually(tb, func() bool { return len(t.sent()) >= n }, waitTimeout, time.Millisecond)
	return t.sent()
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failNext int
	failAll  bool
	autoPong bool
	dialed   chan *fakeTransport

	// When gate is set, Dial signals entered and then blocks until gate is
	// closed, ignoring ctx like a dial that completes after cancellation.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeTransport, 32)}
}

// hold makes subsequent dials block until the returned func is called.
func (d *fakeDialer) hold() (release func()) {
	d.gate = make(chan struct{})
	d.entered = make(chan struct{}, 32)
	return func() { close(d.gate) }
}

func (d *fakeDialer) waitEntered(tb testing.TB) {
	tb.Helper()
	select {
	case <-d.entered:
	case <-time.After(waitTimeout):
		tb.Fatal("timed out waiting for a dial to start")
	}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (ports.Transport, error) {
	if d.gate != nil {
		d.entered <- struct{}{}
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failAll || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		return nil, errors.New("connection refused")
	}
	tr := newFakeTransport()
	tr.autoPong = d.autoPong
	d.dialed <- tr
	return tr, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(tb testing.TB) *fakeTransport {
	tb.Helper()
	select {
	case tr := <-d.dialed:
		return tr
	case <-time.After(waitTimeout):
		tb.Fatal("timed out waiting for a dial")
		return nil
	}
}

type tokenFunc func(ctx context.Context) (string, error)

func (f tokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

func staticToken(token string) tokenFunc {
	return func(context.Context) (string, error) { return token, nil }
}

type transition struct {
	from, to domain.ConnectionState
}

type fakeMetrics struct {
	mu          sync.Mutex
	transitions []transition
	received    []domain.EventKind
	dropped     []string
	sentFrames  []string
	delays      []time.Duration
	roster      int
	transcript  int
}

func (m *fakeMetrics) RecordStateTransition(from, to domain.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, transition{from, to})
}

func (m *fakeMetrics) RecordFrameReceived(kind domain.EventKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, kind)
}

func (m *fakeMetrics) RecordFrameDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, reason)
}

func (m *fakeMetrics) RecordFrameSent(frameType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentFrames = append(m.sentFrames, frameType)
}

func (m *fakeMetrics) RecordReconnectScheduled(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, delay)
}

func (m *fakeMetrics) RecordTimeToLive(time.Duration) {}

func (m *fakeMetrics) SetRosterSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = n
}

func (m *fakeMetrics) SetTranscriptSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcript = n
}

func (m *fakeMetrics) states() []domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ConnectionState
	for _, tr := range m.transitions {
		out = append(out, tr.to)
	}
	return out
}

func (m *fakeMetrics) droppedReasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dropped...)
}

func (m *fakeMetrics) reconnectDelays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

type fakeSink struct {
	mu     sync.Mutex
	events []domain.Event
	ids    []domain.StreamID
}

func (s *fakeSink) Emit(streamID domain.StreamID, ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, streamID)
	s.events = append(s.events, ev)
}

func (s *fakeSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EventKind
	for _, ev := range s.events {
		out = append(out, ev.Kind())
	}
	return out
}
