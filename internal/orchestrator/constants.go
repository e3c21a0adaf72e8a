package orchestrator

// Client-facing error strings. Clients match on these, so they are part of
// the wire contract.
const (
	MsgGreetingAudioFailed = "Failed to generate initial audio."
	MsgAudioFailed         = "Failed to generate audio."
	MsgReplyFailed         = "Failed to generate a reply."
	MsgNoVoice             = "No human voice detected."
	MsgDecodePrefix        = "Unable to decode audio: "
	MsgInternal            = "Something went wrong while handling your message."
	MsgRateLimited         = "rate limit exceeded"
	MsgMalformed           = "Unable to read the message."
)

// Turn kinds, used as metric labels and span names.
const (
	KindGreeting = "greeting"
	KindText     = "text"
	KindAudio    = "audio"
)
