package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"livesession/internal/core/domain"
	"livesession/pkg/utils"
)

// Outbound frame types.
const (
	FrameAuthenticate  = "authenticate"
	FrameChatMessage   = "chat_message"
	FrameDrawingUpdate = "drawing_update"
	FrameStartStream   = "start_stream"
	FrameJoinStream    = "join_stream"
	FrameEndStream     = "end_stream"
	FramePing          = "ping"
)

// Drop reasons reported to metrics.
const (
	DropMalformed   = "malformed_json"
	DropUnknownType = "unknown_type"
	DropInvalid     = "invalid_payload"
)

var errMalformedFrame = errors.New("malformed frame")

// InboundFrame is the envelope of every server frame. Only Type is common;
// the other fields are variant-specific.
type InboundFrame struct {
	Type          string               `json:"type"`
	Data          json.RawMessage      `json:"data,omitempty"`
	StreamID      domain.StreamID      `json:"streamId,omitempty"`
	ParticipantID domain.ParticipantID `json:"participantId,omitempty"`
	Message       string               `json:"message,omitempty"`
	DrawingData   json.RawMessage      `json:"drawingData,omitempty"`
	TickerData    json.RawMessage      `json:"tickerData,omitempty"`
	AudioLevel    *float64             `json:"audioLevel,omitempty"`
}

// OutboundFrame is the envelope of every client frame.
type OutboundFrame struct {
	Type            string          `json:"type"`
	Token           string          `json:"token,omitempty"`
	StreamID        domain.StreamID `json:"streamId,omitempty"`
	Title           string          `json:"title,omitempty"`
	MaxParticipants int             `json:"maxParticipants,omitempty"`
	Message         string          `json:"message,omitempty"`
	DrawingData     json.RawMessage `json:"drawingData,omitempty"`
	Timestamp       int64           `json:"timestamp,omitempty"`
}

// flexTime accepts RFC 3339 strings and epoch milliseconds.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		ts, err := utils.ParseTimestamp(s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = ts
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	t.Time = utils.FromEpochMillis(ms)
	return nil
}

type wireStream struct {
	StreamID            domain.StreamID      `json:"streamId"`
	ID                  domain.StreamID      `json:"id"`
	HostID              domain.ParticipantID `json:"hostId"`
	HostUsername        string               `json:"hostUsername"`
	Title               string               `json:"title"`
	MaxParticipants     int                  `json:"maxParticipants"`
	CurrentParticipants int                  `json:"currentParticipants"`
	IsLive              *bool                `json:"isLive"`
	StartedAt           flexTime             `json:"startedAt"`
	Tickers             []domain.Ticker      `json:"tickers"`
}

type wireParticipant struct {
	ID         domain.ParticipantID `json:"id"`
	Username   string               `json:"username"`
	IsHost     bool                 `json:"isHost"`
	JoinedAt   flexTime             `json:"joinedAt"`
	IsSpeaking bool                 `json:"isSpeaking"`
	AudioLevel float64              `json:"audioLevel"`
}

type wireChat struct {
	ID        string               `json:"id"`
	SenderID  domain.ParticipantID `json:"senderId"`
	Username  string               `json:"username"`
	Message   string               `json:"message"`
	Text      string               `json:"text"`
	Timestamp flexTime             `json:"timestamp"`
}

// DecodeFrame parses one text frame into a typed event. The returned error
// wraps domain.ErrUnknownFrameType, domain.ErrInvalidPayload or a malformed
// JSON error; callers drop the frame in every case.
func DecodeFrame(data []byte) (domain.Event, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}

	switch domain.EventKind(f.Type) {
	case domain.EventStreamCreated:
		return decodeStreamCreated(f)
	case domain.EventParticipantJoined:
		return decodeParticipantJoined(f)
	case domain.EventParticipantLeft:
		id := f.ParticipantID
		if id == "" {
			var body struct {
				ID domain.ParticipantID `json:"id"`
			}
			_ = json.Unmarshal(f.Data, &body)
			id = body.ID
		}
		if id == "" {
			return nil, invalid(f.Type, "participantId is required")
		}
		return domain.ParticipantLeft{ParticipantID: id}, nil
	case domain.EventChatMessage:
		return decodeChat(f)
	case domain.EventDrawingUpdate:
		if len(f.DrawingData) == 0 || bytes.Equal(f.DrawingData, []byte("null")) {
			return nil, invalid(f.Type, "drawingData is required")
		}
		return domain.DrawingReceived{Update: domain.DrawingUpdate{
			ParticipantID: f.ParticipantID,
			Data:          append(json.RawMessage(nil), f.DrawingData...),
		}}, nil
	case domain.EventTickerUpdate:
		return decodeTickers(f)
	case domain.EventAudioLevel:
		if f.ParticipantID == "" {
			return nil, invalid(f.Type, "participantId is required")
		}
		if f.AudioLevel == nil {
			return nil, invalid(f.Type, "audioLevel is required")
		}
		return domain.AudioLevelChanged{ParticipantID: f.ParticipantID, Level: *f.AudioLevel}, nil
	case domain.EventStreamEnded:
		id := f.StreamID
		if id == "" && len(f.Data) > 0 {
			var body struct {
				StreamID domain.StreamID `json:"streamId"`
			}
			_ = json.Unmarshal(f.Data, &body)
			id = body.StreamID
		}
		return domain.StreamEnded{StreamID: id}, nil
	case domain.EventError:
		msg := f.Message
		if msg == "" && len(f.Data) > 0 {
			var body struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(f.Data, &body)
			msg = body.Message
		}
		if msg == "" {
			msg = "server reported an error"
		}
		return domain.ServerError{Message: msg}, nil
	case domain.EventAuthenticated:
		return domain.Authenticated{}, nil
	case domain.EventPong:
		return domain.Pong{}, nil
	case "":
		return nil, invalid(f.Type, "type is required")
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFrameType, f.Type)
	}
}

func decodeStreamCreated(f InboundFrame) (domain.Event, error) {
	if len(f.Data) == 0 {
		return nil, invalid(f.Type, "data is required")
	}
	var w wireStream
	if err := json.Unmarshal(f.Data, &w); err != nil {
		return nil, invalid(f.Type, err.Error())
	}

	id := w.StreamID
	if id == "" {
		id = w.ID
	}
	if id == "" {
		id = f.StreamID
	}
	if id == "" {
		return nil, invalid(f.Type, "streamId is required")
	}

	isLive := true
	if w.IsLive != nil {
		isLive = *w.IsLive
	}
	return domain.StreamCreated{Session: domain.StreamSession{
		StreamID:            id,
		HostID:              w.HostID,
		HostUsername:        w.HostUsername,
		Title:               w.Title,
		MaxParticipants:     w.MaxParticipants,
		CurrentParticipants: w.CurrentParticipants,
		IsLive:              isLive,
		StartedAt:           w.StartedAt.Time,
		Tickers:             w.Tickers,
	}}, nil
}

func decodeParticipantJoined(f InboundFrame) (domain.Event, error) {
	var w wireParticipant
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, invalid(f.Type, err.Error())
		}
	}
	if w.ID == "" {
		w.ID = f.ParticipantID
	}
	if w.ID == "" {
		return nil, invalid(f.Type, "participant id is required")
	}
	return domain.ParticipantJoined{Participant: domain.Participant{
		ID:         w.ID,
		Username:   w.Username,
		IsHost:     w.IsHost,
		JoinedAt:   w.JoinedAt.Time,
		IsSpeaking: w.IsSpeaking,
		AudioLevel: w.AudioLevel,
	}}, nil
}

func decodeChat(f InboundFrame) (domain.Event, error) {
	if len(f.Data) == 0 {
		return nil, invalid(f.Type, "data is required")
	}
	var w wireChat
	if err := json.Unmarshal(f.Data, &w); err != nil {
		return nil, invalid(f.Type, err.Error())
	}
	text := w.Message
	if text == "" {
		text = w.Text
	}
	if text == "" {
		return nil, invalid(f.Type, "message text is required")
	}
	return domain.ChatReceived{Message: domain.ChatMessage{
		ID:        w.ID,
		SenderID:  w.SenderID,
		Username:  w.Username,
		Message:   text,
		Timestamp: w.Timestamp.Time,
	}}, nil
}

// decodeTickers treats an array as the full list and a single object as an
// upsert of one symbol.
func decodeTickers(f InboundFrame) (domain.Event, error) {
	raw := bytes.TrimSpace(f.TickerData)
	if len(raw) == 0 {
		return nil, invalid(f.Type, "tickerData is required")
	}

	var ev domain.TickersReceived
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &ev.Tickers); err != nil {
			return nil, invalid(f.Type, err.Error())
		}
	case '{':
		var t domain.Ticker
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, invalid(f.Type, err.Error())
		}
		ev.Tickers = []domain.Ticker{t}
		ev.Partial = true
	default:
		return nil, invalid(f.Type, "tickerData must be an object or an array")
	}

	for _, t := range ev.Tickers {
		if t.Symbol == "" {
			return nil, invalid(f.Type, "ticker symbol is required")
		}
	}
	if ev.Tickers == nil {
		ev.Tickers = []domain.Ticker{}
	}
	return ev, nil
}

func invalid(frameType, reason string) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrInvalidPayload, frameType, reason)
}

// DropReason classifies a DecodeFrame error for metrics.
func DropReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownFrameType):
		return DropUnknownType
	case errors.Is(err, domain.ErrInvalidPayload):
		return DropInvalid
	default:
		return DropMalformed
	}
}

// Encode serializes an outbound frame.
func Encode(f OutboundFrame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

func AuthenticateFrame(token string) OutboundFrame {
	return OutboundFrame{Type: FrameAuthenticate, Token: token}
}

func ChatMessageFrame(streamID domain.StreamID, text string) OutboundFrame {
	return OutboundFrame{Type: FrameChatMessage, StreamID: streamID, Message: text}
}

func DrawingUpdateFrame(streamID domain.StreamID, data json.RawMessage) OutboundFrame {
	return OutboundFrame{Type: FrameDrawingUpdate, StreamID: streamID, DrawingData: data}
}

func StartStreamFrame(title string, maxParticipants int) OutboundFrame {
	return OutboundFrame{Type: FrameStartStream, Title: title, MaxParticipants: maxParticipants}
}

func JoinStreamFrame(streamID domain.StreamID) OutboundFrame {
	return OutboundFrame{Type: FrameJoinStream, StreamID: streamID}
}

func EndStreamFrame(streamID domain.StreamID) OutboundFrame {
	return OutboundFrame{Type: FrameEndStream, StreamID: streamID}
}

func PingFrame(now time.Time) OutboundFrame {
	return OutboundFrame{Type: FramePing, Timestamp: now.UnixMilli()}
}
