package ports

import (
	"context"
	"encoding/json"
	"time"

	"livesession/internal/core/domain"
)

// TokenSource yields the caller's current access token. An empty token with
// a nil error means no credential is available.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// EventSink receives every event applied to the session replica.
// Emit must not block.
type EventSink interface {
	Emit(streamID domain.StreamID, ev domain.Event)
}

type MetricsRecorder interface {
	RecordStateTransition(from, to domain.ConnectionState)
	RecordFrameReceived(kind domain.EventKind)
	RecordFrameDropped(reason string)
	RecordFrameSent(frameType string)
	RecordReconnectScheduled(delay time.Duration)
	RecordTimeToLive(d time.Duration)
	SetRosterSize(n int)
	SetTranscriptSize(n int)
}

// SessionClient is the caller-facing surface of a live session client.
type SessionClient interface {
	Connect()
	Close() error

	State() domain.ConnectionState
	IsConnected() bool
	StreamData() *domain.StreamSession
	Participants() []domain.Participant
	Messages() []domain.ChatMessage
	Error() string
	Snapshot() domain.Snapshot

	SendMessage(text string) bool
	SendDrawingUpdate(data json.RawMessage) bool
	StartStream(title string, maxParticipants int) bool
	JoinStream(streamID domain.StreamID) bool
	EndStream() bool
}
