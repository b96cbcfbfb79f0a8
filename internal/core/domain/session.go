package domain

import (
	"encoding/json"
	"time"
)

type StreamID string
type ParticipantID string

// SpeakingThreshold is the audio level above which a participant counts as speaking.
const SpeakingThreshold = 0.1

type StreamSession struct {
	StreamID            StreamID      `json:"streamId"`
	HostID              ParticipantID `json:"hostId"`
	HostUsername        string        `json:"hostUsername"`
	Title               string        `json:"title"`
	MaxParticipants     int           `json:"maxParticipants"`
	CurrentParticipants int           `json:"currentParticipants"`
	IsLive              bool          `json:"isLive"`
	StartedAt           time.Time     `json:"startedAt"`
	Tickers             []Ticker      `json:"tickers"`
}

// Clone returns a deep copy safe to hand to callers.
func (s *StreamSession) Clone() *StreamSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Tickers = append([]Ticker(nil), s.Tickers...)
	return &out
}

type Participant struct {
	ID         ParticipantID `json:"id"`
	Username   string        `json:"username"`
	IsHost     bool          `json:"isHost"`
	JoinedAt   time.Time     `json:"joinedAt"`
	IsSpeaking bool          `json:"isSpeaking"`
	AudioLevel float64       `json:"audioLevel"`
}

type ChatMessage struct {
	ID         string        `json:"id,omitempty"`
	SenderID   ParticipantID `json:"senderId"`
	Username   string        `json:"username,omitempty"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
	ReceivedAt time.Time     `json:"receivedAt"`
}

// DrawingUpdate is the latest canvas payload; the protocol keeps no history.
type DrawingUpdate struct {
	ParticipantID ParticipantID   `json:"participantId,omitempty"`
	Data          json.RawMessage `json:"drawingData"`
	ReceivedAt    time.Time       `json:"receivedAt"`
}

func (d *DrawingUpdate) Clone() *DrawingUpdate {
	if d == nil {
		return nil
	}
	out := *d
	out.Data = append(json.RawMessage(nil), d.Data...)
	return &out
}

type Ticker struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}
