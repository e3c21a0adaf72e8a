// Package server provides the HTTP page and the websocket transport
package server

import (
	"time"

	"github.com/GriffinCanCode/voicerelay/internal/orchestrator"
)

// Wire event names
const (
	EventMessage           = "message"
	EventSpeechToText      = "speech_to_text"
	EventResponseWithAudio = "response_with_audio"
	EventSTTResponse       = "stt_response"
)

// Server defaults, used when Config leaves a field zero
const (
	DefaultMaxMessageBytes   = 16 << 20
	DefaultQueueSize         = 16
	DefaultRateLimitMessages = 30
	DefaultRateLimitWindow   = time.Second

	// Bound on a single outbound frame write
	writeTimeout = 10 * time.Second
)

// MsgRateLimited is the error carried by replies to events over the limit.
const MsgRateLimited = orchestrator.MsgRateLimited
