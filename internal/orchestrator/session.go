package orchestrator

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/GriffinCanCode/voicerelay/internal/audio"
	"github.com/GriffinCanCode/voicerelay/internal/errors"
	"github.com/GriffinCanCode/voicerelay/internal/metrics"
	"github.com/GriffinCanCode/voicerelay/internal/trace"
)

// Session owns one client connection. It keeps no dialogue history: every
// turn is independent.
type Session struct {
	id  string
	o   *Orchestrator
	out Emitter
	log *slog.Logger
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run narrates the greeting, then handles events from in one at a time until
// in is closed or ctx is done. A turn that has started always runs to
// completion and emits exactly one terminal event; events still queued when
// ctx is done are dropped.
func (s *Session) Run(ctx context.Context, in <-chan Event) {
	m := s.o.deps.Metrics
	m.RecordSessionStarted()
	dropped := 0
	defer func() { m.RecordSessionEnded(dropped) }()

	// Turns are detached from connection cancellation.
	turnCtx := context.WithoutCancel(ctx)

	s.log.Info("session started")
	s.greet(turnCtx)

	for {
		select {
		case <-ctx.Done():
			dropped = len(in)
			s.log.Info("session ended", "dropped_events", dropped)
			return
		case ev, ok := <-in:
			if !ok {
				s.log.Info("session ended")
				return
			}
			if ctx.Err() != nil {
				dropped = 1 + len(in)
				s.log.Info("session ended", "dropped_events", dropped)
				return
			}
			s.handle(turnCtx, ev)
		}
	}
}

func (s *Session) handle(ctx context.Context, ev Event) {
	if ev.Reject != "" {
		s.reject(ctx, ev)
		return
	}

	switch ev.Kind {
	case EventText:
		r := runTurn(ctx, s, KindText, func(ctx context.Context) Reply {
			return s.textTurn(ctx, ev.Text)
		}, Reply{Error: MsgInternal})
		s.emitReply(ctx, r)
	case EventAudio:
		t := runTurn(ctx, s, KindAudio, func(ctx context.Context) Transcription {
			return s.audioTurn(ctx, ev.Audio)
		}, Transcription{Error: MsgInternal})
		s.emitTranscription(ctx, t)
	default:
		s.log.Warn("ignoring unknown event", "kind", ev.Kind.String())
	}
}

// reject answers a refused event with the payload type its kind expects.
func (s *Session) reject(ctx context.Context, ev Event) {
	s.logger(ctx).Warn("event rejected", "kind", ev.Kind.String(), "reason", ev.Reject)
	switch ev.Kind {
	case EventText:
		s.emitReply(ctx, Reply{Error: ev.Reject})
	case EventAudio:
		s.emitTranscription(ctx, Transcription{Error: ev.Reject})
	default:
		s.log.Warn("ignoring unknown event", "kind", ev.Kind.String())
	}
}

func (s *Session) greet(ctx context.Context) {
	greeting := s.o.opts.Greeting
	r := runTurn(ctx, s, KindGreeting, func(ctx context.Context) Reply {
		speech, err := s.o.synthesize(ctx, greeting)
		if err != nil {
			s.logger(ctx).Log(ctx, failureLevel(err), "greeting narration failed", "error", err)
			return Reply{Message: greeting, Error: MsgGreetingAudioFailed}
		}
		return Reply{Message: greeting, Audio: speech}
	}, Reply{Message: greeting, Error: MsgGreetingAudioFailed})
	s.emitReply(ctx, r)
}

func (s *Session) textTurn(ctx context.Context, text string) Reply {
	log := s.logger(ctx)

	reply, err := s.o.reply(ctx, text)
	if err != nil {
		log.Log(ctx, failureLevel(err), "dialogue failed", "error", err, "code", errors.CodeOf(err))
		return Reply{Error: MsgReplyFailed}
	}

	speech, err := s.o.synthesize(ctx, reply)
	if err != nil {
		log.Log(ctx, failureLevel(err), "narration failed", "error", err, "code", errors.CodeOf(err))
		return Reply{Message: reply, Error: MsgAudioFailed}
	}

	return Reply{Message: reply, Audio: speech}
}

func (s *Session) audioTurn(ctx context.Context, data []byte) Transcription {
	log := s.logger(ctx)
	format := audio.Sniff(data)

	clip, err := s.o.deps.Spool.Put(data, format.Extension())
	if err != nil {
		log.Error("spool write failed", "error", err)
		return Transcription{Error: errors.UserMessage(err)}
	}
	defer func() {
		if err := clip.Close(); err != nil {
			log.Warn("spool cleanup failed", "path", clip.Path(), "error", err)
		}
	}()

	stored, err := clip.Bytes()
	if err != nil {
		log.Error("spool read failed", "error", err)
		return Transcription{Error: errors.UserMessage(err)}
	}

	decision, err := s.o.evaluate(stored)
	if err != nil {
		log.Warn("clip rejected", "error", err, "format", string(format), "size", len(stored))
		if isDecodeError(err) {
			return Transcription{Error: MsgDecodePrefix + errors.UserMessage(err)}
		}
		return Transcription{Error: errors.UserMessage(err)}
	}
	log.Debug("gate decision", "voice", decision.Voice, "zcr", decision.ZCR)
	if !decision.Voice {
		return Transcription{Error: MsgNoVoice}
	}

	r, err := clip.Open()
	if err != nil {
		log.Error("spool open failed", "error", err)
		return Transcription{Error: errors.UserMessage(err)}
	}
	defer r.Close()

	text, err := s.o.transcribe(ctx, r, format)
	if err != nil {
		log.Log(ctx, failureLevel(err), "transcription failed", "error", err, "code", errors.CodeOf(err))
		return Transcription{Error: errors.UserMessage(err)}
	}

	return Transcription{Text: &text}
}

func (s *Session) emitReply(ctx context.Context, r Reply) {
	if err := s.out.EmitReply(ctx, r); err != nil {
		s.logger(ctx).Warn("failed to emit reply", "error", err)
	}
}

func (s *Session) emitTranscription(ctx context.Context, t Transcription) {
	if err := s.out.EmitTranscription(ctx, t); err != nil {
		s.logger(ctx).Warn("failed to emit transcription", "error", err)
	}
}

func (s *Session) logger(ctx context.Context) *slog.Logger {
	return trace.Logger(ctx).With("session_id", s.id)
}

// runTurn executes fn under a span and a panic boundary. onPanic is returned
// in place of fn's payload if fn panics.
func runTurn[T interface{ Failed() bool }](ctx context.Context, s *Session, kind string, fn func(context.Context) T, onPanic T) (out T) {
	ctx, span := trace.StartSpan(ctx, "turn."+kind)
	span.SetAttr("session_id", s.id)
	log := s.logger(ctx)

	outcome := metrics.OutcomeOK
	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome = metrics.OutcomePanic
				log.Error("turn panicked", "kind", kind, "panic", r, "stack", string(debug.Stack()))
				out = onPanic
			}
		}()
		out = fn(ctx)
	}()
	if outcome == metrics.OutcomeOK && out.Failed() {
		outcome = metrics.OutcomeError
	}

	span.SetAttr("outcome", outcome)
	s.o.deps.Metrics.RecordTurn(kind, outcome, span.End())
	log.Info("turn complete", "span", span)
	return out
}

// failureLevel is Warn for remote service failures and Error otherwise.
func failureLevel(err error) slog.Level {
	if errors.IsUpstream(err) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

func isDecodeError(err error) bool {
	switch errors.CodeOf(err) {
	case errors.CodeDecodeFailed, errors.CodeEmptyInput, errors.CodeUnsupportedFormat:
		return true
	}
	return false
}
