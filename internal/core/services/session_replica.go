package services

import (
	"sync"
	"time"

	"livesession/internal/core/domain"
)

// SessionReplica is the client-side copy of shared session state.
//
// It is written by a single session loop and read concurrently through
// copies. The roster always contains the host while a stream is known: the
// host is synthesized from stream_created and survives participant_left.
type SessionReplica struct {
	mu sync.RWMutex

	stream   *domain.StreamSession
	roster   map[domain.ParticipantID]*domain.Participant
	order    []domain.ParticipantID
	messages []domain.ChatMessage
	seen     map[string]struct{}
	drawing  *domain.DrawingUpdate
	tickers  []domain.Ticker

	maxMessages int
	now         func() time.Time
}

// NewSessionReplica creates an empty replica. maxMessages caps the transcript;
// zero keeps every message.
func NewSessionReplica(maxMessages int) *SessionReplica {
	return &SessionReplica{
		roster:      make(map[domain.ParticipantID]*domain.Participant),
		seen:        make(map[string]struct{}),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// Apply folds one inbound event into the replica and reports whether
// anything changed. Errors and control events are not session state.
func (r *SessionReplica) Apply(ev domain.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case domain.StreamCreated:
		return r.applyStreamCreated(e.Session)
	case domain.ParticipantJoined:
		return r.applyJoined(e.Participant)
	case domain.ParticipantLeft:
		return r.applyLeft(e.ParticipantID)
	case domain.ChatReceived:
		return r.applyChat(e.Message)
	case domain.DrawingReceived:
		update := e.Update
		if update.ReceivedAt.IsZero() {
			update.ReceivedAt = r.now()
		}
		r.drawing = &update
		return true
	case domain.TickersReceived:
		return r.applyTickers(e.Tickers, e.Partial)
	case domain.AudioLevelChanged:
		return r.applyAudioLevel(e.ParticipantID, e.Level)
	case domain.StreamEnded:
		if e.StreamID != "" && r.stream != nil && e.StreamID != r.stream.StreamID {
			return false
		}
		r.resetLocked()
		return true
	}
	return false
}

// Reset discards all session state.
func (r *SessionReplica) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *SessionReplica) resetLocked() {
	r.stream = nil
	r.roster = make(map[domain.ParticipantID]*domain.Participant)
	r.order = nil
	r.messages = nil
	r.seen = make(map[string]struct{})
	r.drawing = nil
	r.tickers = nil
}

func (r *SessionReplica) applyStreamCreated(s domain.StreamSession) bool {
	if r.stream != nil && r.stream.StreamID != s.StreamID {
		r.resetLocked()
	}

	if len(s.Tickers) > 0 {
		r.tickers = append([]domain.Ticker(nil), s.Tickers...)
	}
	s.Tickers = append([]domain.Ticker(nil), r.tickers...)
	r.stream = &s

	if s.HostID == "" {
		return true
	}
	if host, ok := r.roster[s.HostID]; ok {
		host.IsHost = true
		if host.Username == "" {
			host.Username = s.HostUsername
		}
		return true
	}

	joinedAt := s.StartedAt
	if joinedAt.IsZero() {
		joinedAt = r.now()
	}
	r.roster[s.HostID] = &domain.Participant{
		ID:       s.HostID,
		Username: s.HostUsername,
		IsHost:   true,
		JoinedAt: joinedAt,
	}
	r.order = append([]domain.ParticipantID{s.HostID}, r.order...)
	return true
}

func (r *SessionReplica) applyJoined(p domain.Participant) bool {
	if p.ID == "" {
		return false
	}
	if r.stream != nil && p.ID == r.stream.HostID {
		p.IsHost = true
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = r.now()
	}

	if existing, ok := r.roster[p.ID]; ok {
		*existing = p
		return true
	}
	r.roster[p.ID] = &p
	r.order = append(r.order, p.ID)
	return true
}

func (r *SessionReplica) applyLeft(id domain.ParticipantID) bool {
	if _, ok := r.roster[id]; !ok {
		return false
	}
	if r.stream != nil && id == r.stream.HostID {
		return false
	}

	delete(r.roster, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *SessionReplica) applyChat(m domain.ChatMessage) bool {
	if m.ID != "" {
		if _, dup := r.seen[m.ID]; dup {
			return false
		}
		r.seen[m.ID] = struct{}{}
	}

	m.ReceivedAt = r.now()
	if m.Timestamp.IsZero() {
		m.Timestamp = m.ReceivedAt
	}
	r.messages = append(r.messages, m)

	if r.maxMessages > 0 && len(r.messages) > r.maxMessages {
		evicted := len(r.messages) - r.maxMessages
		for _, old := range r.messages[:evicted] {
			if old.ID != "" {
				delete(r.seen, old.ID)
			}
		}
		r.messages = append([]domain.ChatMessage(nil), r.messages[evicted:]...)
	}
	return true
}

func (r *SessionReplica) applyTickers(tickers []domain.Ticker, partial bool) bool {
	if !partial {
		r.tickers = append([]domain.Ticker(nil), tickers...)
	} else {
		for _, t := range tickers {
			replaced := false
			for i := range r.tickers {
				if r.tickers[i].Symbol == t.Symbol {
					r.tickers[i] = t
					replaced = true
					break
				}
			}
			if !replaced {
				r.tickers = append(r.tickers, t)
			}
		}
	}

	if r.stream != nil {
		r.stream.Tickers = append([]domain.Ticker(nil), r.tickers...)
	}
	return true
}

func (r *SessionReplica) applyAudioLevel(id domain.ParticipantID, level float64) bool {
	p, ok := r.roster[id]
	if !ok {
		return false
	}
	p.AudioLevel = level
	p.IsSpeaking = level > domain.SpeakingThreshold
	return true
}

// StreamID returns the id of the current stream, or "" when none is known.
func (r *SessionReplica) StreamID() domain.StreamID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stream == nil {
		return ""
	}
	return r.stream.StreamID
}

func (r *SessionReplica) Stream() *domain.StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stream.Clone()
}

// Participants returns the roster in join order.
func (r *SessionReplica) Participants() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participantsLocked()
}

func (r *SessionReplica) participantsLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.roster[id])
	}
	return out
}

// Messages returns the transcript in arrival order.
func (r *SessionReplica) Messages() []domain.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ChatMessage{}, r.messages...)
}

func (r *SessionReplica) RosterSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *SessionReplica) TranscriptSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

// Fill copies the replica into snap under a single read lock.
func (r *SessionReplica) Fill(snap *domain.Snapshot) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap.Stream = r.stream.Clone()
	snap.Participants = r.participantsLocked()
	snap.Messages = append([]domain.ChatMessage{}, r.messages...)
	snap.Drawing = r.drawing.Clone()
	snap.Tickers = append([]domain.Ticker{}, r.tickers...)
}
