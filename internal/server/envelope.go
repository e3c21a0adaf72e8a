package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/voicerelay/internal/orchestrator"
)

// envelope is the JSON frame shape in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// speechPayload carries a clip as base64 text.
type speechPayload struct {
	Audio []byte `json:"audio"`
}

// errUnknownEvent marks frames that are ignored rather than answered.
type errUnknownEvent string

func (e errUnknownEvent) Error() string { return fmt.Sprintf("unknown event %q", string(e)) }

// decodeFrame turns one inbound frame into a session event. Binary frames
// are raw audio clips. A known event with an unreadable payload comes back
// as a rejected event of its kind together with the parse error, so the
// client still gets an answer.
func decodeFrame(typ websocket.MessageType, data []byte) (orchestrator.Event, error) {
	if typ == websocket.MessageBinary {
		return orchestrator.AudioEvent(data), nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return orchestrator.Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case EventMessage:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			return orchestrator.RejectedEvent(orchestrator.EventText, orchestrator.MsgMalformed),
				fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return orchestrator.TextEvent(text), nil
	case EventSpeechToText:
		var p speechPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return orchestrator.RejectedEvent(orchestrator.EventAudio, orchestrator.MsgMalformed),
				fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return orchestrator.AudioEvent(p.Audio), nil
	default:
		return orchestrator.Event{}, errUnknownEvent(env.Event)
	}
}

// wsEmitter writes session output to one connection.
type wsEmitter struct {
	conn *websocket.Conn
}

func (e *wsEmitter) EmitReply(ctx context.Context, r orchestrator.Reply) error {
	return e.send(ctx, EventResponseWithAudio, r)
}

func (e *wsEmitter) EmitTranscription(ctx context.Context, t orchestrator.Transcription) error {
	return e.send(ctx, EventSTTResponse, t)
}

func (e *wsEmitter) send(ctx context.Context, event string, data any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, e.conn, outbound{Event: event, Data: data})
}

// wireName maps an event kind to its inbound wire name.
func wireName(k orchestrator.EventKind) string {
	if k == orchestrator.EventAudio {
		return EventSpeechToText
	}
	return EventMessage
}
