// Package config handles relay configuration
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/GriffinCanCode/voicerelay/internal/errors"
	"github.com/GriffinCanCode/voicerelay/internal/openai"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator/vad"
	"github.com/GriffinCanCode/voicerelay/internal/resilience"
	"github.com/GriffinCanCode/voicerelay/internal/server"
)

// Config holds relay settings loaded from the environment.
type Config struct {
	HTTPAddr    string
	MetricsAddr string // empty disables the Prometheus listener
	HealthAddr  string // empty disables the gRPC health listener
	LogLevel    slog.Level

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	ChatModel       string
	SpeechModel     string
	TTSModel        string
	TTSVoice        string
	SystemPrompt    string
	Greeting        string
	UpstreamTimeout time.Duration // 0 leaves timeouts to the upstream
	BreakerProfile  string        // default, fast or slow

	VADThreshold   float64
	VADSampleRate  int
	VADFrameLength int
	VADHopLength   int

	SpoolDir          string
	MaxMessageBytes   int64
	QueueSize         int
	RateLimitMessages int
	RateLimitWindow   time.Duration
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory if one exists.
func Load() *Config {
	_ = godotenv.Load()
	models := openai.DefaultModels()

	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":5000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		HealthAddr:  getEnv("HEALTH_ADDR", ""),
		LogLevel:    getEnvLevel("LOG_LEVEL", slog.LevelInfo),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", openai.DefaultBaseURL),
		ChatModel:       getEnv("CHAT_MODEL", models.Chat),
		SpeechModel:     getEnv("SPEECH_MODEL", models.Speech),
		TTSModel:        getEnv("TTS_MODEL", models.TTS),
		TTSVoice:        getEnv("TTS_VOICE", models.Voice),
		SystemPrompt:    getEnv("SYSTEM_PROMPT", openai.DefaultSystemPrompt),
		Greeting:        getEnv("GREETING", orchestrator.DefaultGreeting),
		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 0),
		BreakerProfile:  getEnv("BREAKER_PROFILE", "default"),

		VADThreshold:   getEnvFloat("VAD_THRESHOLD", 0),
		VADSampleRate:  getEnvInt("VAD_SAMPLE_RATE", vad.DefaultSampleRate),
		VADFrameLength: getEnvInt("VAD_FRAME_LENGTH", vad.DefaultFrameLength),
		VADHopLength:   getEnvInt("VAD_HOP_LENGTH", vad.DefaultHopLength),

		SpoolDir:          getEnv("SPOOL_DIR", ""),
		MaxMessageBytes:   int64(getEnvInt("MAX_MESSAGE_BYTES", server.DefaultMaxMessageBytes)),
		QueueSize:         getEnvInt("QUEUE_SIZE", server.DefaultQueueSize),
		RateLimitMessages: getEnvInt("RATE_LIMIT_MESSAGES", server.DefaultRateLimitMessages),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", server.DefaultRateLimitWindow),
	}
}

// Validate reports settings the relay cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return errors.New(errors.CodeConfigMissing, "No OpenAI API key found. Please set the OPENAI_API_KEY environment variable.")
	}
	if c.VADThreshold < 0 {
		return errors.Newf(errors.CodeConfigInvalid, "VAD_THRESHOLD must be >= 0, got %v", c.VADThreshold)
	}
	if c.VADSampleRate <= 0 || c.VADFrameLength <= 0 || c.VADHopLength <= 0 {
		return errors.New(errors.CodeConfigInvalid, "VAD_SAMPLE_RATE, VAD_FRAME_LENGTH and VAD_HOP_LENGTH must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.Newf(errors.CodeConfigInvalid, "QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	if !resilience.HasProfile(c.BreakerProfile) {
		return errors.Newf(errors.CodeConfigInvalid, "BREAKER_PROFILE must be one of %s, got %q",
			strings.Join(resilience.Profiles(), ", "), c.BreakerProfile)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvLevel(key string, def slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			return lvl
		}
	}
	return def
}
