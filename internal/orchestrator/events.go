package orchestrator

// EventKind identifies an inbound client event.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventAudio
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return KindText
	case EventAudio:
		return KindAudio
	default:
		return "unknown"
	}
}

// Event is one inbound client message. An event with Reject set is answered
// with that error, in queue order, without running a turn.
type Event struct {
	Kind   EventKind
	Text   string // EventText
	Audio  []byte // EventAudio
	Reject string
}

// TextEvent builds a text message event.
func TextEvent(text string) Event { return Event{Kind: EventText, Text: text} }

// AudioEvent builds an audio message event.
func AudioEvent(clip []byte) Event { return Event{Kind: EventAudio, Audio: clip} }

// RejectedEvent builds an event of kind that is refused with reason.
func RejectedEvent(kind EventKind, reason string) Event { return Event{Kind: kind, Reject: reason} }

// Reply answers the greeting and text messages. Exactly one of Audio and
// Error is set.
type Reply struct {
	Message string `json:"message"`
	Audio   []byte `json:"audio,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Transcription answers an audio message. Text is null on the wire when the
// clip was rejected or failed.
type Transcription struct {
	Text  *string `json:"text"`
	Error string  `json:"error,omitempty"`
}

// Failed reports whether the payload carries an error.
func (r Reply) Failed() bool { return r.Error != "" }

// Failed reports whether the payload carries an error.
func (t Transcription) Failed() bool { return t.Error != "" }
