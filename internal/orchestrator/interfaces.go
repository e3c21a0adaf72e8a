package orchestrator

import (
	"context"
	"io"

	"github.com/GriffinCanCode/voicerelay/internal/audio"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator/vad"
)

// VoiceGate decides whether a clip holds speech.
type VoiceGate interface {
	Evaluate(clip []byte) (vad.Decision, error)
}

// SpeechService converts a clip to text.
type SpeechService interface {
	Transcribe(ctx context.Context, clip io.Reader, format audio.Format) (string, error)
}

// DialogueService produces a reply to a single message. No history is kept.
type DialogueService interface {
	Reply(ctx context.Context, text string) (string, error)
}

// NarrationService converts text to encoded audio.
type NarrationService interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Emitter delivers a session's terminal events to its client.
type Emitter interface {
	EmitReply(ctx context.Context, r Reply) error
	EmitTranscription(ctx context.Context, t Transcription) error
}
