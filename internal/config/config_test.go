package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/GriffinCanCode/voicerelay/internal/errors"
	"github.com/GriffinCanCode/voicerelay/internal/openai"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator"
)

var envVars = []string{
	"HTTP_ADDR", "METRICS_ADDR", "HEALTH_ADDR", "LOG_LEVEL", "OPENAI_API_KEY", "OPENAI_BASE_URL",
	"CHAT_MODEL", "SPEECH_MODEL", "TTS_MODEL", "TTS_VOICE", "SYSTEM_PROMPT", "GREETING",
	"UPSTREAM_TIMEOUT", "BREAKER_PROFILE", "VAD_THRESHOLD", "VAD_SAMPLE_RATE", "VAD_FRAME_LENGTH",
	"VAD_HOP_LENGTH", "SPOOL_DIR", "MAX_MESSAGE_BYTES", "QUEUE_SIZE", "RATE_LIMIT_MESSAGES",
	"RATE_LIMIT_WINDOW",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.HTTPAddr != ":5000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":5000")
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, ":9090")
	}
	if cfg.HealthAddr != "" {
		t.Errorf("HealthAddr = %q, want empty", cfg.HealthAddr)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
	if cfg.SystemPrompt != openai.DefaultSystemPrompt || cfg.OpenAIBaseURL != openai.DefaultBaseURL {
		t.Errorf("SystemPrompt/OpenAIBaseURL = %q/%q, want client defaults", cfg.SystemPrompt, cfg.OpenAIBaseURL)
	}
	if cfg.ChatModel != "gpt-4o" || cfg.SpeechModel != "whisper-1" || cfg.TTSModel != "tts-1" || cfg.TTSVoice != "nova" {
		t.Errorf("models = %q/%q/%q/%q", cfg.ChatModel, cfg.SpeechModel, cfg.TTSModel, cfg.TTSVoice)
	}
	if cfg.Greeting != orchestrator.DefaultGreeting {
		t.Errorf("Greeting = %q, want default", cfg.Greeting)
	}
	if cfg.VADThreshold != 0 {
		t.Errorf("VADThreshold = %f, want 0", cfg.VADThreshold)
	}
	if cfg.VADSampleRate != 22050 {
		t.Errorf("VADSampleRate = %d, want 22050", cfg.VADSampleRate)
	}
	if cfg.VADFrameLength != 2048 || cfg.VADHopLength != 512 {
		t.Errorf("VAD framing = %d/%d, want 2048/512", cfg.VADFrameLength, cfg.VADHopLength)
	}
	if cfg.UpstreamTimeout != 0 {
		t.Errorf("UpstreamTimeout = %v, want 0", cfg.UpstreamTimeout)
	}
	if cfg.QueueSize != 16 {
		t.Errorf("QueueSize = %d, want 16", cfg.QueueSize)
	}
	if cfg.RateLimitWindow != time.Second {
		t.Errorf("RateLimitWindow = %v, want 1s", cfg.RateLimitWindow)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VAD_THRESHOLD", "0.05")
	t.Setenv("UPSTREAM_TIMEOUT", "30s")
	t.Setenv("QUEUE_SIZE", "4")
	t.Setenv("GREETING", "Hello!")

	cfg := Load()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey = %q, want %q", cfg.OpenAIAPIKey, "sk-test")
	}
	if cfg.VADThreshold != 0.05 {
		t.Errorf("VADThreshold = %f, want 0.05", cfg.VADThreshold)
	}
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Errorf("UpstreamTimeout = %v, want 30s", cfg.UpstreamTimeout)
	}
	if cfg.QueueSize != 4 {
		t.Errorf("QueueSize = %d, want 4", cfg.QueueSize)
	}
	if cfg.Greeting != "Hello!" {
		t.Errorf("Greeting = %q, want %q", cfg.Greeting, "Hello!")
	}
}

func TestLoadInvalidValuesUseDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAD_SAMPLE_RATE", "fast")
	t.Setenv("VAD_THRESHOLD", "loud")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")
	t.Setenv("LOG_LEVEL", "chatty")

	cfg := Load()

	if cfg.VADSampleRate != 22050 {
		t.Errorf("VADSampleRate = %d, want default 22050", cfg.VADSampleRate)
	}
	if cfg.VADThreshold != 0 {
		t.Errorf("VADThreshold = %f, want default 0", cfg.VADThreshold)
	}
	if cfg.RateLimitWindow != time.Second {
		t.Errorf("RateLimitWindow = %v, want default 1s", cfg.RateLimitWindow)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want default INFO", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := *Load()
	base.OpenAIAPIKey = "sk-test"
	valid := func() *Config {
		cfg := base
		return &cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		code   errors.Code
	}{
		{"missing key", func(c *Config) { c.OpenAIAPIKey = "" }, errors.CodeConfigMissing},
		{"blank key", func(c *Config) { c.OpenAIAPIKey = "   " }, errors.CodeConfigMissing},
		{"negative threshold", func(c *Config) { c.VADThreshold = -0.1 }, errors.CodeConfigInvalid},
		{"zero hop", func(c *Config) { c.VADHopLength = 0 }, errors.CodeConfigInvalid},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }, errors.CodeConfigInvalid},
		{"unknown profile", func(c *Config) { c.BreakerProfile = "reckless" }, errors.CodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.IsCode(err, tt.code) {
				t.Errorf("Validate() = %v, want code %s", err, tt.code)
			}
		})
	}
}
