package openai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/GriffinCanCode/voicerelay/internal/errors"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Reply sends text, with only the system prompt as context, and returns the
// trimmed assistant reply.
func (c *Client) Reply(ctx context.Context, text string) (string, error) {
	return call(ctx, c, ServiceDialogue, errors.CodeDialogueFailed, func(ctx context.Context) (string, error) {
		body, err := c.postJSON(ctx, "/chat/completions", chatRequest{
			Model: c.models.Chat,
			Messages: []chatMessage{
				{Role: "system", Content: c.systemPrompt},
				{Role: "user", Content: text},
			},
		})
		if err != nil {
			return "", err
		}

		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", errors.Wrap(err, errors.CodeDialogueFailed, "Failed to generate a reply.")
		}
		if len(resp.Choices) == 0 {
			return "", errors.New(errors.CodeDialogueFailed, "Failed to generate a reply.").
				WithMetadata("reason", "no choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
}
