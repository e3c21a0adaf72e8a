package openai

import (
	"context"

	"github.com/GriffinCanCode/voicerelay/internal/errors"
)

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns MP3 audio for text. An empty body is a synthesis failure.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return call(ctx, c, ServiceNarration, errors.CodeSynthesisFailed, func(ctx context.Context) ([]byte, error) {
		body, err := c.postJSON(ctx, "/audio/speech", speechRequest{
			Model:          c.models.TTS,
			Voice:          c.models.Voice,
			Input:          text,
			ResponseFormat: "mp3",
		})
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			return nil, errors.New(errors.CodeSynthesisFailed, "Failed to generate audio.").
				WithMetadata("reason", "empty body")
		}
		return body, nil
	})
}
