package signal

import (
	"encoding/json"

	"livesession/internal/core/domain"
	"livesession/pkg/utils"
	"livesession/pkg/validation"
)

// Outbound commands are written only while Live. Otherwise, or when the
// arguments are invalid, they are silent no-ops that return false: nothing is
// queued or retried.

func (c *Client) SendMessage(text string) bool {
	text = utils.SanitizeString(text)
	if err := validation.ValidateChatMessage(text); err != nil {
		c.logger.Debugw("chat message rejected", "error", err)
		return false
	}
	return c.command(FrameChatMessage, func(streamID domain.StreamID) (OutboundFrame, bool) {
		if streamID == "" {
			return OutboundFrame{}, false
		}
		return ChatMessageFrame(streamID, text), true
	})
}

func (c *Client) SendDrawingUpdate(data json.RawMessage) bool {
	if len(data) == 0 || !json.Valid(data) {
		c.logger.Debugw("drawing update rejected", "error", "drawing data must be valid JSON")
		return false
	}
	payload := append(json.RawMessage(nil), data...)
	return c.command(FrameDrawingUpdate, func(streamID domain.StreamID) (OutboundFrame, bool) {
		if streamID == "" {
			return OutboundFrame{}, false
		}
		return DrawingUpdateFrame(streamID, payload), true
	})
}

func (c *Client) StartStream(title string, maxParticipants int) bool {
	title = utils.SanitizeString(title)
	if err := validation.ValidateStreamTitle(title); err != nil {
		c.logger.Debugw("start stream rejected", "error", err)
		return false
	}
	if err := validation.ValidateMaxParticipants(maxParticipants); err != nil {
		c.logger.Debugw("start stream rejected", "error", err)
		return false
	}
	return c.command(FrameStartStream, func(domain.StreamID) (OutboundFrame, bool) {
		return StartStreamFrame(title, maxParticipants), true
	})
}

func (c *Client) JoinStream(streamID domain.StreamID) bool {
	if err := validation.ValidateStreamID(string(streamID)); err != nil {
		c.logger.Debugw("join stream rejected", "error", err)
		return false
	}
	return c.command(FrameJoinStream, func(domain.StreamID) (OutboundFrame, bool) {
		return JoinStreamFrame(streamID), true
	})
}

// EndStream ends the stream this client currently knows about.
func (c *Client) EndStream() bool {
	return c.command(FrameEndStream, func(streamID domain.StreamID) (OutboundFrame, bool) {
		if streamID == "" {
			return OutboundFrame{}, false
		}
		return EndStreamFrame(streamID), true
	})
}

// command runs build on the session loop, where the Live check and the write
// happen atomically with respect to state changes.
func (c *Client) command(frameType string, build func(domain.StreamID) (OutboundFrame, bool)) bool {
	if c.State() != domain.StateLive {
		return false
	}
	reply := make(chan bool, 1)
	if !c.post(commandRequest{frameType: frameType, build: build, reply: reply}) {
		return false
	}
	select {
	case sent := <-reply:
		return sent
	case <-c.done:
		return false
	}
}
