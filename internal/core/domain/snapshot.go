package domain

// Snapshot is an immutable copy of everything a caller can observe.
type Snapshot struct {
	State        ConnectionState `json:"state"`
	Stream       *StreamSession  `json:"streamData"`
	Participants []Participant   `json:"participants"`
	Messages     []ChatMessage   `json:"messages"`
	Drawing      *DrawingUpdate  `json:"drawing,omitempty"`
	Tickers      []Ticker        `json:"tickers"`
	LastError    string          `json:"error,omitempty"`
}

func (s Snapshot) IsConnected() bool {
	return s.State == StateLive
}

// Participant looks up a roster entry by id.
func (s Snapshot) Participant(id ParticipantID) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}
