package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"
	"livesession/internal/core/services"
	apperrors "livesession/pkg/errors"
	"livesession/pkg/tracing"
	"livesession/pkg/utils"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Loop events. Everything that touches lifecycle state arrives here and is
// handled by the session loop one at a time.
type (
	connectRequest struct{ reply chan struct{} }
	closeRequest   struct{ reply chan error }

	dialResult struct {
		gen      uint64
		conn     ports.Transport
		err      error
		token    string
		tokenErr error
	}

	frameEvent struct {
		gen  uint64
		data []byte
	}

	transportClosed struct {
		gen uint64
		err error
	}

	commandRequest struct {
		frameType string
		build     func(streamID domain.StreamID) (OutboundFrame, bool)
		reply     chan bool
	}
)

// Client is a realtime live-stream session client. It owns at most one
// transport and one set of timers, and keeps a replica of the shared session
// state that callers read through copies.
type Client struct {
	opts    Options
	dialer  ports.Dialer
	tokens  ports.TokenSource
	metrics ports.MetricsRecorder
	sink    ports.EventSink
	logger  *zap.SugaredLogger
	now     func() time.Time

	replica *services.SessionReplica

	events    chan interface{}
	done      chan struct{}
	startOnce sync.Once
	postMu    sync.RWMutex
	stopped   bool

	mu      sync.RWMutex
	state   domain.ConnectionState
	lastErr *apperrors.AppError
	changed chan struct{}

	// Owned by the session loop.
	gen          uint64
	conn         ports.Transport
	dialCancel   context.CancelFunc
	heartbeat    *heartbeat
	authTimer    *time.Timer
	reconnect    *reconnectPolicy
	attemptStart time.Time
	attemptCtx   context.Context
	attemptSpan  trace.Span
}

var _ ports.SessionClient = (*Client)(nil)

// NewClient creates a client in the Disconnected state. metrics and sink may
// be nil.
func NewClient(
	opts Options,
	dialer ports.Dialer,
	tokens ports.TokenSource,
	metrics ports.MetricsRecorder,
	sink ports.EventSink,
	logger *zap.SugaredLogger,
) *Client {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		opts:      opts,
		dialer:    dialer,
		tokens:    tokens,
		metrics:   metrics,
		sink:      sink,
		logger:    logger.With("client_id", opts.ClientID),
		now:       time.Now,
		replica:   services.NewSessionReplica(opts.MaxMessages),
		events:    make(chan interface{}, 64),
		done:      make(chan struct{}),
		changed:   make(chan struct{}),
		reconnect: newReconnectPolicy(opts.Reconnect),
	}
}

// Connect starts a connection attempt from Disconnected. It is a no-op while
// an attempt or connection is already in progress and after Close.
func (c *Client) Connect() {
	c.startLoop()
	reply := make(chan struct{})
	if c.post(connectRequest{reply: reply}) {
		select {
		case <-reply:
		case <-c.done:
		}
	}
}

// Close tears down the transport and every timer and moves to Closed. It is
// idempotent and safe from any state.
func (c *Client) Close() error {
	c.startLoop()
	reply := make(chan error, 1)
	if !c.post(closeRequest{reply: reply}) {
		return nil
	}
	select {
	case err := <-reply:
		<-c.done
		return err
	case <-c.done:
		return nil
	}
}

func (c *Client) startLoop() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// post hands an event to the loop. It reports false once the loop has exited.
// A true result guarantees the event is seen by either handle or drain.
func (c *Client) post(ev interface{}) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.stopped {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) run() {
	defer c.drain()
	defer close(c.done)

	for {
		select {
		case ev := <-c.events:
			if c.handle(ev) {
				return
			}
		case <-c.heartbeat.C():
			c.onHeartbeat()
		case <-c.reconnect.C():
			c.reconnect.fired()
			c.onReconnectDue()
		case <-c.authTimeoutC():
			c.authTimer = nil
			c.onAuthTimeout()
		}

		if c.State() == domain.StateClosed {
			return
		}
	}
}

// drain releases transports whose dial results were posted after the loop
// stopped listening.
func (c *Client) drain() {
	// done is already closed, so no post can stay blocked holding the read lock.
	c.postMu.Lock()
	c.stopped = true
	c.postMu.Unlock()

	for {
		select {
		case ev := <-c.events:
			if r, ok := ev.(dialResult); ok && r.conn != nil {
				r.conn.Close(CloseNormal, "client closed")
			}
		default:
			return
		}
	}
}

// handle dispatches one loop event and reports whether the loop must exit.
func (c *Client) handle(ev interface{}) bool {
	switch e := ev.(type) {
	case connectRequest:
		c.onConnectRequest()
		close(e.reply)
	case closeRequest:
		e.reply <- c.shutdown()
		return true
	case dialResult:
		c.onDialResult(e)
	case frameEvent:
		c.onFrame(e)
	case transportClosed:
		if e.gen == c.gen && c.conn != nil {
			c.onTransportLost(e.err)
		}
	case commandRequest:
		e.reply <- c.onCommand(e)
	}
	return false
}

func (c *Client) onConnectRequest() {
	if c.State() != domain.StateDisconnected {
		return
	}
	c.reconnect.reset()
	c.startAttempt()
}

func (c *Client) startAttempt() {
	c.gen++
	gen := c.gen
	c.attemptStart = c.now()
	c.setState(domain.StateConnecting)

	c.attemptCtx, c.attemptSpan = tracing.TraceConnectAttempt(
		context.Background(), c.opts.ClientID, c.opts.URL, c.reconnect.attempts()+1)

	ctx := context.Background()
	var cancel context.CancelFunc
	if c.opts.HandshakeTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	c.dialCancel = cancel

	c.logger.Infow("connecting to session endpoint", "url", c.opts.URL, "attempt", c.reconnect.attempts()+1)

	go func() {
		res := dialResult{gen: gen}
		res.conn, res.err = c.dialer.Dial(ctx, c.opts.URL)
		if res.err == nil {
			res.token, res.tokenErr = c.tokens.Token(ctx)
		}
		if !c.post(res) && res.conn != nil {
			res.conn.Close(CloseNormal, "client closed")
		}
	}()
}

func (c *Client) onDialResult(r dialResult) {
	if r.gen != c.gen || c.State() != domain.StateConnecting {
		if r.conn != nil {
			r.conn.Close(CloseNormal, "superseded")
		}
		return
	}
	c.stopDial()

	if r.err != nil {
		c.logger.Warnw("session dial failed", "error", r.err)
		c.failAttempt(apperrors.NewTransportError(r.err))
		return
	}

	if r.tokenErr != nil || r.token == "" {
		cause := r.tokenErr
		if cause == nil {
			cause = domain.ErrTokenUnavailable
		}
		r.conn.Close(CloseNormal, "no credentials")
		c.logger.Errorw("no authentication token available, giving up", "error", cause)
		c.setLastError(apperrors.NewAuthUnavailableError(cause))
		c.endAttemptSpan(cause)
		c.teardown()
		c.setState(domain.StateClosed)
		return
	}

	c.conn = r.conn
	hb := newHeartbeat(c.opts.HeartbeatInterval, c.opts.MaxMissedPongs, c.now)
	c.heartbeat = hb
	r.conn.SetPongHandler(hb.touch)
	go c.readLoop(r.gen, r.conn)

	c.setState(domain.StateAuthenticating)
	if err := c.write(AuthenticateFrame(r.token)); err != nil {
		c.onTransportLost(err)
		return
	}
	if c.opts.AuthTimeout > 0 {
		c.authTimer = time.NewTimer(c.opts.AuthTimeout)
	}
}

// readLoop forwards frames of one transport until it fails.
func (c *Client) readLoop(gen uint64, conn ports.Transport) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.post(transportClosed{gen: gen, err: err})
			return
		}
		if !c.post(frameEvent{gen: gen, data: data}) {
			return
		}
	}
}

func (c *Client) onFrame(f frameEvent) {
	if f.gen != c.gen || c.conn == nil {
		return
	}
	c.heartbeat.touch()

	ev, err := DecodeFrame(f.data)
	if err != nil {
		reason := DropReason(err)
		c.metrics.RecordFrameDropped(reason)
		c.logger.Warnw("dropping inbound frame",
			"reason", reason,
			"error", err,
			"frame", utils.TruncateString(string(f.data), 256),
		)
		return
	}
	c.metrics.RecordFrameReceived(ev.Kind())

	if c.State() == domain.StateAuthenticating {
		if _, isErr := ev.(domain.ServerError); !isErr {
			c.becomeLive()
		}
	}

	switch e := ev.(type) {
	case domain.ServerError:
		c.logger.Warnw("server reported an error", "message", e.Message)
		c.setLastError(apperrors.NewProtocolError(e.Message))
		return
	case domain.Authenticated, domain.Pong:
		return
	}

	prev := c.replica.StreamID()
	if !c.replica.Apply(ev) {
		return
	}
	c.metrics.SetRosterSize(c.replica.RosterSize())
	c.metrics.SetTranscriptSize(c.replica.TranscriptSize())
	c.notify()

	if c.sink != nil {
		streamID := c.replica.StreamID()
		if streamID == "" {
			streamID = prev
		}
		c.sink.Emit(streamID, ev)
	}
}

func (c *Client) becomeLive() {
	c.stopAuthTimer()
	c.reconnect.reset()
	c.heartbeat.start()

	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()

	c.metrics.RecordTimeToLive(c.now().Sub(c.attemptStart))
	c.endAttemptSpan(nil)
	c.setState(domain.StateLive)
}

func (c *Client) onHeartbeat() {
	if c.conn == nil || c.State() != domain.StateLive {
		return
	}
	if c.heartbeat.expired() {
		c.logger.Warnw("heartbeat timed out, dropping transport", "max_missed_pongs", c.opts.MaxMissedPongs)
		c.conn.Close(CloseAbnormal, "heartbeat timeout")
		c.onTransportLost(&ports.CloseError{Code: CloseAbnormal, Reason: "heartbeat timeout"})
		return
	}

	if err := c.write(PingFrame(c.now())); err != nil {
		c.onTransportLost(err)
		return
	}
	if err := c.conn.WritePing(); err != nil {
		c.onTransportLost(err)
	}
}

func (c *Client) onAuthTimeout() {
	if c.conn == nil || c.State() != domain.StateAuthenticating {
		return
	}
	c.logger.Warnw("authentication timed out", "timeout", c.opts.AuthTimeout)
	c.conn.Close(CloseAbnormal, "authentication timeout")
	c.onTransportLost(&ports.CloseError{Code: CloseAbnormal, Reason: "authentication timed out"})
}

// onTransportLost classifies the end of the current transport and decides
// the next state. The replica is kept.
func (c *Client) onTransportLost(err error) {
	prev := c.State()
	ce := closeErrorOf(err)
	c.teardown()

	switch {
	case ce.Code == CloseNormal:
		c.logger.Infow("server closed the session", "reason", ce.Reason)
		c.endAttemptSpan(nil)
		c.setState(domain.StateDisconnected)

	case prev == domain.StateAuthenticating && isAuthRejection(ce.Code):
		c.logger.Errorw("authentication rejected", "code", ce.Code, "reason", ce.Reason)
		c.setLastError(apperrors.NewAuthRejectedError(ce.Reason).WithContext("close_code", ce.Code))
		c.endAttemptSpan(domain.ErrAuthRejected)
		c.setState(domain.StateClosed)

	default:
		c.logger.Warnw("transport lost", "state", prev, "code", ce.Code, "reason", ce.Reason)
		c.failAttempt(apperrors.NewTransportError(ce))
	}
}

// failAttempt records a retryable failure and schedules the next attempt.
func (c *Client) failAttempt(appErr *apperrors.AppError) {
	c.setLastError(appErr)
	c.endAttemptSpan(appErr)

	delay, ok := c.reconnect.schedule()
	if !ok {
		if c.opts.Reconnect.Enabled {
			c.setLastError(apperrors.WrapError(appErr, apperrors.ErrCodeTransport,
				fmt.Sprintf("giving up after %d reconnect attempts", c.reconnect.attempts()), appErr.HTTPStatus))
		}
		c.setState(domain.StateDisconnected)
		return
	}

	c.metrics.RecordReconnectScheduled(delay)
	c.logger.Infow("reconnect scheduled", "delay", utils.FormatDuration(delay), "attempt", c.reconnect.attempts())
	c.setState(domain.StateReconnecting)
}

func (c *Client) onReconnectDue() {
	if c.State() != domain.StateReconnecting {
		return
	}
	c.startAttempt()
}

func (c *Client) onCommand(cmd commandRequest) bool {
	if c.conn == nil || c.State() != domain.StateLive {
		return false
	}
	frame, ok := cmd.build(c.replica.StreamID())
	if !ok {
		return false
	}

	_, span := tracing.TraceCommand(context.Background(), cmd.frameType, string(frame.StreamID))
	defer span.End()

	if err := c.write(frame); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.onTransportLost(err)
		return false
	}
	c.metrics.RecordFrameSent(cmd.frameType)
	return true
}

func (c *Client) write(f OutboundFrame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(data); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", f.Type, err)
	}
	return nil
}

// teardown releases the transport and every timer except the reconnect timer.
// Events still in flight from the old transport become stale.
func (c *Client) teardown() {
	c.gen++
	c.stopDial()
	c.stopAuthTimer()
	c.heartbeat.stop()
	c.heartbeat = nil
	if c.conn != nil {
		c.conn.Close(CloseAbnormal, "")
		c.conn = nil
	}
}

// shutdown is the single caller-initiated teardown path.
func (c *Client) shutdown() error {
	c.gen++
	c.stopDial()
	c.stopAuthTimer()
	c.reconnect.cancel()
	c.heartbeat.stop()
	c.heartbeat = nil

	var err error
	if c.conn != nil {
		err = c.conn.Close(CloseNormal, "client closed")
		c.conn = nil
	}
	c.endAttemptSpan(domain.ErrClientClosed)

	c.replica.Reset()
	c.metrics.SetRosterSize(0)
	c.metrics.SetTranscriptSize(0)
	c.setState(domain.StateClosed)
	c.logger.Infow("session client closed")
	return err
}

func (c *Client) stopDial() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
}

func (c *Client) stopAuthTimer() {
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
}

func (c *Client) authTimeoutC() <-chan time.Time {
	if c.authTimer == nil {
		return nil
	}
	return c.authTimer.C
}

func (c *Client) endAttemptSpan(err error) {
	if c.attemptSpan == nil {
		return
	}
	tracing.AddSpanAttributes(c.attemptCtx, tracing.StateKey.String(c.State().String()))
	tracing.MeasureDuration(c.attemptCtx, c.attemptStart)
	if err != nil {
		tracing.RecordError(c.attemptCtx, err)
	} else {
		c.attemptSpan.SetStatus(codes.Ok, "")
	}
	c.attemptSpan.End()
	c.attemptSpan = nil
	c.attemptCtx = nil
}

func (c *Client) setState(next domain.ConnectionState) {
	c.mu.Lock()
	prev := c.state
	if prev == next || prev == domain.StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()

	c.metrics.RecordStateTransition(prev, next)
	c.logger.Infow("session state changed", "from", prev, "to", next)
	c.notify()
}

func (c *Client) setLastError(err *apperrors.AppError) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
}

// notify wakes every Changed/WaitFor waiter.
func (c *Client) notify() {
	c.mu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

// Changed returns a channel closed on the next observable change.
func (c *Client) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// WaitFor blocks until cond holds for a snapshot or ctx is done.
func (c *Client) WaitFor(ctx context.Context, cond func(domain.Snapshot) bool) error {
	for {
		ch := c.Changed()
		if cond(c.Snapshot()) {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) State() domain.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected is true only while Live.
func (c *Client) IsConnected() bool {
	return c.State() == domain.StateLive
}

func (c *Client) StreamData() *domain.StreamSession {
	return c.replica.Stream()
}

func (c *Client) Participants() []domain.Participant {
	return c.replica.Participants()
}

func (c *Client) Messages() []domain.ChatMessage {
	return c.replica.Messages()
}

// Error returns the most recent problem, or "" when there is none.
func (c *Client) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Message
}

// LastError returns the classified form of Error.
func (c *Client) LastError() *apperrors.AppError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Client) Snapshot() domain.Snapshot {
	var snap domain.Snapshot
	c.mu.RLock()
	snap.State = c.state
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Message
	}
	c.mu.RUnlock()

	c.replica.Fill(&snap)
	return snap
}

type nopMetrics struct{}

func (nopMetrics) RecordStateTransition(domain.ConnectionState, domain.ConnectionState) {}
func (nopMetrics) RecordFrameReceived(domain.EventKind) {}
func (nopMetrics) RecordFrameDropped(string) {}
func (nopMetrics) RecordFrameSent(string) {}
func (nopMetrics) RecordReconnectScheduled(time.Duration) {}
func (nopMetrics) RecordTimeToLive(time.Duration) {}
func (nopMetrics) SetRosterSize(int) {}
func (nopMetrics) SetTranscriptSize(int) {}
