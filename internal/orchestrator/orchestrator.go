// Package orchestrator runs voice chat sessions: a greeting on connect, then
// one turn per inbound event, strictly in order.
package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GriffinCanCode/voicerelay/internal/audio"
	"github.com/GriffinCanCode/voicerelay/internal/errors"
	"github.com/GriffinCanCode/voicerelay/internal/metrics"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator/spool"
	"github.com/GriffinCanCode/voicerelay/internal/orchestrator/vad"
)

// DefaultGreeting is narrated to every new session unless overridden.
const DefaultGreeting = "Hi there! Need help or just a friendly chat?"

// Deps are the collaborators shared by every session.
type Deps struct {
	Gate      VoiceGate
	Speech    SpeechService
	Dialogue  DialogueService
	Narration NarrationService
	Spool     *spool.Store
	Metrics   *metrics.Metrics // optional
}

// Options tune session behaviour.
type Options struct {
	Greeting        string
	UpstreamTimeout time.Duration // 0 leaves timeouts to the upstream
}

// Orchestrator creates sessions over a fixed set of collaborators.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New validates deps and returns an orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Gate == nil:
		return nil, errors.New(errors.CodeInvalidArgument, "voice gate is required")
	case deps.Speech == nil:
		return nil, errors.New(errors.CodeInvalidArgument, "speech service is required")
	case deps.Dialogue == nil:
		return nil, errors.New(errors.CodeInvalidArgument, "dialogue service is required")
	case deps.Narration == nil:
		return nil, errors.New(errors.CodeInvalidArgument, "narration service is required")
	case deps.Spool == nil:
		return nil, errors.New(errors.CodeInvalidArgument, "spool store is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	return &Orchestrator{deps: deps, opts: opts}, nil
}

// NewSession binds a session to one client's emitter.
func (o *Orchestrator) NewSession(out Emitter) *Session {
	id := uuid.NewString()
	return &Session{
		id:  id,
		o:   o,
		out: out,
		log: slog.Default().With("session_id", id),
	}
}

// upstreamCtx applies the optional per-call timeout.
func (o *Orchestrator) upstreamCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.UpstreamTimeout > 0 {
		return context.WithTimeout(ctx, o.opts.UpstreamTimeout)
	}
	return ctx, func() {}
}

func (o *Orchestrator) reply(ctx context.Context, text string) (string, error) {
	ctx, cancel := o.upstreamCtx(ctx)
	defer cancel()
	return o.deps.Dialogue.Reply(ctx, text)
}

func (o *Orchestrator) synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := o.upstreamCtx(ctx)
	defer cancel()
	b, err := o.deps.Narration.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New(errors.CodeSynthesisFailed, "narration returned no audio")
	}
	return b, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, clip io.Reader, format audio.Format) (string, error) {
	ctx, cancel := o.upstreamCtx(ctx)
	defer cancel()
	return o.deps.Speech.Transcribe(ctx, clip, format)
}

func (o *Orchestrator) evaluate(clip []byte) (vad.Decision, error) {
	d, err := o.deps.Gate.Evaluate(clip)
	if err == nil {
		o.deps.Metrics.RecordGate(d.Voice, d.ZCR)
	}
	return d, err
}
