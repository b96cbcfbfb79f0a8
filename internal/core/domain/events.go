package domain

import "encoding/json"

// EventKind is the wire type tag of an inbound frame.
type EventKind string

const (
	EventStreamCreated     EventKind = "stream_created"
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventChatMessage       EventKind = "chat_message"
	EventDrawingUpdate     EventKind = "drawing_update"
	EventTickerUpdate      EventKind = "ticker_update"
	EventAudioLevel        EventKind = "audio_level"
	EventStreamEnded       EventKind = "stream_ended"
	EventError             EventKind = "error"

	// Control tags. They never touch the replica.
	EventAuthenticated EventKind = "authenticated"
	EventPong          EventKind = "pong"
)

// Event is a decoded inbound frame.
type Event interface {
	Kind() EventKind
}

type StreamCreated struct {
	Session StreamSession
}

type ParticipantJoined struct {
	Participant Participant
}

type ParticipantLeft struct {
	ParticipantID ParticipantID
}

type ChatReceived struct {
	Message ChatMessage
}

type DrawingReceived struct {
	Update DrawingUpdate
}

// TickersReceived replaces the ticker list, or upserts by symbol when Partial is set.
type TickersReceived struct {
	Tickers []Ticker
	Partial bool
}

type AudioLevelChanged struct {
	ParticipantID ParticipantID
	Level         float64
}

type StreamEnded struct {
	StreamID StreamID
}

type ServerError struct {
	Message string
}

type Authenticated struct{}

type Pong struct{}

func (StreamCreated) Kind() EventKind     { return EventStreamCreated }
func (ParticipantJoined) Kind() EventKind { return EventParticipantJoined }
func (ParticipantLeft) Kind() EventKind   { return EventParticipantLeft }
func (ChatReceived) Kind() EventKind      { return EventChatMessage }
func (DrawingReceived) Kind() EventKind   { return EventDrawingUpdate }
func (TickersReceived) Kind() EventKind   { return EventTickerUpdate }
func (AudioLevelChanged) Kind() EventKind { return EventAudioLevel }
func (StreamEnded) Kind() EventKind       { return EventStreamEnded }
func (ServerError) Kind() EventKind       { return EventError }
func (Authenticated) Kind() EventKind     { return EventAuthenticated }
func (Pong) Kind() EventKind              { return EventPong }

// IsControl reports whether the event carries no session state.
func IsControl(ev Event) bool {
	switch ev.Kind() {
	case EventAuthenticated, EventPong:
		return true
	}
	return false
}

// Payload renders an event body for mirrors and logs.
func Payload(ev Event) json.RawMessage {
	var v interface{}
	switch e := ev.(type) {
	case StreamCreated:
		v = e.Session
	case ParticipantJoined:
		v = e.Participant
	case ParticipantLeft:
		v = map[string]ParticipantID{"participantId": e.ParticipantID}
	case ChatReceived:
		v = e.Message
	case DrawingReceived:
		v = e.Update
	case TickersReceived:
		v = e.Tickers
	case AudioLevelChanged:
		v = map[string]interface{}{"participantId": e.ParticipantID, "audioLevel": e.Level}
	case StreamEnded:
		v = map[string]StreamID{"streamId": e.StreamID}
	case ServerError:
		v = map[string]string{"message": e.Message}
	default:
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
