package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/GriffinCanCode/voicerelay/internal/audio"
	"github.com/GriffinCanCode/voicerelay/internal/errors"
)

// Transcribe uploads the clip and returns the recognised text.
func (c *Client) Transcribe(ctx context.Context, clip io.Reader, format audio.Format) (string, error) {
	data, err := io.ReadAll(clip)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeTranscriptionFailed, "Transcription failed.")
	}

	return call(ctx, c, ServiceSpeech, errors.CodeTranscriptionFailed, func(ctx context.Context) (string, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)

		fw, err := mw.CreateFormFile("file", "audio"+format.Extension())
		if err != nil {
			return "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := fw.Write(data); err != nil {
			return "", fmt.Errorf("write audio data: %w", err)
		}
		if err := mw.WriteField("model", c.models.Speech); err != nil {
			return "", fmt.Errorf("write model field: %w", err)
		}
		if err := mw.Close(); err != nil {
			return "", fmt.Errorf("close multipart: %w", err)
		}

		body, err := c.post(ctx, "/audio/transcriptions", mw.FormDataContentType(), &buf)
		if err != nil {
			return "", err
		}

		var resp struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", errors.Wrap(err, errors.CodeTranscriptionFailed, "Transcription failed.")
		}
		return resp.Text, nil
	})
}
