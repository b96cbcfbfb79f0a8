package signal

import (
	"encoding/json"
	"testing"
	"time"

	"livesession/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_StreamCreated(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{
		"type": "stream_created",
		"data": {
			"id": "s1",
			"hostId": "h1",
			"hostUsername": "host",
			"title": "Morning market",
			"maxParticipants": 10,
			"currentParticipants": 1,
			"startedAt": "2026-10-19T09:00:00Z",
			"tickers": [{"symbol": "AAPL", "price": 190.5}]
		}
	}`))
	require.NoError(t, err)

	created, ok := ev.(domain.StreamCreated)
	require.True(t, ok, "expected StreamCreated, got %T", ev)
	assert.Equal(t, domain.StreamID("s1"), created.Session.StreamID)
	assert.Equal(t, domain.ParticipantID("h1"), created.Session.HostID)
	assert.Equal(t, "Morning market", created.Session.Title)
	assert.True(t, created.Session.IsLive, "isLive defaults to true")
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), created.Session.StartedAt.UTC())
	require.Len(t, created.Session.Tickers, 1)
	assert.Equal(t, "AAPL", created.Session.Tickers[0].Symbol)
}

func TestDecodeFrame_StreamCreatedEpochMillis(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"stream_created","data":{"streamId":"s1","isLive":false,"startedAt":1760864400000}}`))
	require.NoError(t, err)

	created := ev.(domain.StreamCreated)
	assert.False(t, created.Session.IsLive)
	assert.Equal(t, int64(1760864400000), created.Session.StartedAt.UnixMilli())
}

func TestDecodeFrame_Variants(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  domain.Event
	}{
		{
			name:  "participant joined",
			frame: `{"type":"participant_joined","data":{"id":"p1","username":"ann"}}`,
			want:  domain.ParticipantJoined{Participant: domain.Participant{ID: "p1", Username: "ann"}},
		},
		{
			name:  "participant left",
			frame: `{"type":"participant_left","participantId":"p1"}`,
			want:  domain.ParticipantLeft{ParticipantID: "p1"},
		},
		{
			name:  "participant left in data",
			frame: `{"type":"participant_left","data":{"id":"p2"}}`,
			want:  domain.ParticipantLeft{ParticipantID: "p2"},
		},
		{
			name:  "audio level",
			frame: `{"type":"audio_level","participantId":"p1","audioLevel":0}`,
			want:  domain.AudioLevelChanged{ParticipantID: "p1", Level: 0},
		},
		{
			name:  "stream ended",
			frame: `{"type":"stream_ended","streamId":"s1"}`,
			want:  domain.StreamEnded{StreamID: "s1"},
		},
		{
			name:  "stream ended without id",
			frame: `{"type":"stream_ended"}`,
			want:  domain.StreamEnded{},
		},
		{
			name:  "server error",
			frame: `{"type":"error","message":"stream is full"}`,
			want:  domain.ServerError{Message: "stream is full"},
		},
		{
			name:  "server error in data",
			frame: `{"type":"error","data":{"message":"not allowed"}}`,
			want:  domain.ServerError{Message: "not allowed"},
		},
		{
			name:  "authenticated",
			frame: `{"type":"authenticated"}`,
			want:  domain.Authenticated{},
		},
		{
			name:  "pong",
			frame: `{"type":"pong","timestamp":1}`,
			want:  domain.Pong{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeFrame([]byte(tc.frame))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev)
		})
	}
}

func TestDecodeFrame_ChatAcceptsTextAlias(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"chat_message","data":{"id":"m1","senderId":"p1","text":"hi","timestamp":"2026-10-19T09:00:01Z"}}`))
	require.NoError(t, err)

	chat := ev.(domain.ChatReceived)
	assert.Equal(t, "m1", chat.Message.ID)
	assert.Equal(t, "hi", chat.Message.Message)
	assert.False(t, chat.Message.Timestamp.IsZero())
}

func TestDecodeFrame_Drawing(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"drawing_update","participantId":"p1","drawingData":{"strokes":[[1,2],[3,4]]}}`))
	require.NoError(t, err)

	drawing := ev.(domain.DrawingReceived)
	assert.Equal(t, domain.ParticipantID("p1"), drawing.Update.ParticipantID)
	assert.JSONEq(t, `{"strokes":[[1,2],[3,4]]}`, string(drawing.Update.Data))
}

func TestDecodeFrame_Tickers(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"ticker_update","tickerData":[{"symbol":"AAPL","price":1},{"symbol":"MSFT","price":2}]}`))
	require.NoError(t, err)
	full := ev.(domain.TickersReceived)
	assert.False(t, full.Partial)
	assert.Len(t, full.Tickers, 2)

	ev, err = DecodeFrame([]byte(`{"type":"ticker_update","tickerData":{"symbol":"AAPL","price":3}}`))
	require.NoError(t, err)
	one := ev.(domain.TickersReceived)
	assert.True(t, one.Partial)
	require.Len(t, one.Tickers, 1)
	assert.Equal(t, 3.0, one.Tickers[0].Price)

	ev, err = DecodeFrame([]byte(`{"type":"ticker_update","tickerData":[]}`))
	require.NoError(t, err)
	assert.Empty(t, ev.(domain.TickersReceived).Tickers)
}

func TestDecodeFrame_Drops(t *testing.T) {
	cases := []struct {
		name   string
		frame  string
		reason string
	}{
		{"not json", `{not json`, DropMalformed},
		{"truncated", `{"type":"chat_message","data":{"mess`, DropMalformed},
		{"array envelope", `[1,2,3]`, DropMalformed},
		{"missing type", `{"data":{}}`, DropInvalid},
		{"unknown type", `{"type":"video_frame"}`, DropUnknownType},
		{"stream without id", `{"type":"stream_created","data":{"title":"x"}}`, DropInvalid},
		{"stream without data", `{"type":"stream_created"}`, DropInvalid},
		{"chat without text", `{"type":"chat_message","data":{"id":"m1"}}`, DropInvalid},
		{"participant without id", `{"type":"participant_joined","data":{"username":"x"}}`, DropInvalid},
		{"left without id", `{"type":"participant_left"}`, DropInvalid},
		{"drawing without data", `{"type":"drawing_update","drawingData":null}`, DropInvalid},
		{"audio without level", `{"type":"audio_level","participantId":"p1"}`, DropInvalid},
		{"ticker scalar", `{"type":"ticker_update","tickerData":42}`, DropInvalid},
		{"ticker without symbol", `{"type":"ticker_update","tickerData":{"price":1}}`, DropInvalid},
		{"bad timestamp", `{"type":"chat_message","data":{"message":"x","timestamp":"yesterday"}}`, DropInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeFrame([]byte(tc.frame))
			require.Error(t, err)
			assert.Nil(t, ev)
			assert.Equal(t, tc.reason, DropReason(err))
		})
	}
}

func TestEncode_OutboundFrames(t *testing.T) {
	now := time.UnixMilli(1760864400123)

	cases := []struct {
		name  string
		frame OutboundFrame
		want  string
	}{
		{"authenticate", AuthenticateFrame("tok"), `{"type":"authenticate","token":"tok"}`},
		{"chat", ChatMessageFrame("s1", "hello"), `{"type":"chat_message","streamId":"s1","message":"hello"}`},
		{"drawing", DrawingUpdateFrame("s1", json.RawMessage(`{"x":1}`)), `{"type":"drawing_update","streamId":"s1","drawingData":{"x":1}}`},
		{"start", StartStreamFrame("Demo", 5), `{"type":"start_stream","title":"Demo","maxParticipants":5}`},
		{"join", JoinStreamFrame("s9"), `{"type":"join_stream","streamId":"s9"}`},
		{"end", EndStreamFrame("s1"), `{"type":"end_stream","streamId":"s1"}`},
		{"ping", PingFrame(now), `{"type":"ping","timestamp":1760864400123}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.frame)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}
}
