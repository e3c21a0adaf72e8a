package openai

import (
	"net/http"

	"github.com/GriffinCanCode/voicerelay/internal/metrics"
	"github.com/GriffinCanCode/voicerelay/internal/resilience"
)

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultSystemPrompt sets the assistant's spoken, casual personality.
const DefaultSystemPrompt = "You are a helpful and humorous assistant. User will directly talk with you (by microphone), " +
	"and your response will come out by Text-To-Speech, so expect that it should be oral-like chat, " +
	"not too formal or too long sentences."

// Models names the model used by each endpoint.
type Models struct {
	Chat   string
	Speech string
	TTS    string
	Voice  string
}

// DefaultModels returns the stock model choices.
func DefaultModels() Models {
	return Models{Chat: "gpt-4o", Speech: "whisper-1", TTS: "tts-1", Voice: "nova"}
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing or proxying).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithModels overrides model names; empty fields keep their defaults.
func WithModels(m Models) Option {
	return func(c *Client) {
		if m.Chat != "" {
			c.models.Chat = m.Chat
		}
		if m.Speech != "" {
			c.models.Speech = m.Speech
		}
		if m.TTS != "" {
			c.models.TTS = m.TTS
		}
		if m.Voice != "" {
			c.models.Voice = m.Voice
		}
	}
}

// WithSystemPrompt replaces the personality prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		if prompt != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithBreakerConfig sets the circuit breaker settings for every service.
func WithBreakerConfig(cfg resilience.Config) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// WithBreakerHook observes breaker transitions of every service.
func WithBreakerHook(h resilience.Hook) Option {
	return func(c *Client) { c.hooks = append(c.hooks, h) }
}

// WithMetrics records upstream latency and results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}
