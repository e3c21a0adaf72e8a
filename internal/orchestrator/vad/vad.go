// Package vad decides whether a clip holds speech worth transcribing.
//
// The metric is the mean zero-crossing rate of the clip after decoding to
// mono and resampling to a fixed rate. Any signal that crosses zero more
// often than the threshold passes; with the default threshold of 0 only
// silence or a constant signal is rejected.
package vad

import (
	"math"

	"github.com/GriffinCanCode/voicerelay/internal/audio"
	"github.com/GriffinCanCode/voicerelay/internal/errors"
)

// Default framing, matching the usual 22.05 kHz analysis setup.
const (
	DefaultSampleRate  = 22050
	DefaultFrameLength = 2048
	DefaultHopLength   = 512

	// zeroEpsilon is the magnitude at or below which a sample counts as zero.
	zeroEpsilon = 1e-10
)

// Config for a Gate
type Config struct {
	Threshold   float64
	SampleRate  int
	FrameLength int
	HopLength   int
}

// DefaultConfig returns the default gate settings.
func DefaultConfig() Config {
	return Config{
		SampleRate:  DefaultSampleRate,
		FrameLength: DefaultFrameLength,
		HopLength:   DefaultHopLength,
	}
}

// Decision is the gate's verdict and the metric behind it.
type Decision struct {
	Voice bool
	ZCR   float64
}

// Gate evaluates clips. It holds no mutable state and is safe for concurrent use.
type Gate struct {
	cfg Config
}

// New validates cfg and returns a gate.
func New(cfg Config) (*Gate, error) {
	if cfg.Threshold < 0 || math.IsNaN(cfg.Threshold) {
		return nil, errors.Newf(errors.CodeInvalidArgument, "vad threshold must be >= 0, got %v", cfg.Threshold)
	}
	if cfg.SampleRate <= 0 || cfg.FrameLength <= 0 || cfg.HopLength <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "vad sample rate, frame length and hop length must be positive")
	}
	return &Gate{cfg: cfg}, nil
}

// Threshold returns the configured pass threshold.
func (g *Gate) Threshold() float64 { return g.cfg.Threshold }

// Evaluate decodes the clip and decides whether it contains voice. Decode
// failures are returned as AppErrors; the clip is never modified.
func (g *Gate) Evaluate(clip []byte) (Decision, error) {
	pcm, err := audio.DecodeAt(clip, g.cfg.SampleRate)
	if err != nil {
		return Decision{}, err
	}
	return g.Decide(MeanZCR(pcm.Samples, g.cfg.FrameLength, g.cfg.HopLength)), nil
}

// Decide applies the threshold to a metric.
func (g *Gate) Decide(zcr float64) Decision {
	return Decision{Voice: zcr > g.cfg.Threshold, ZCR: zcr}
}

// MeanZCR returns the mean per-frame zero-crossing rate. The signal is
// centred by padding frame/2 edge samples on each side; each frame's rate is
// its crossing count divided by the frame length.
func MeanZCR(samples []float32, frameLength, hopLength int) float64 {
	if len(samples) == 0 || frameLength <= 0 || hopLength <= 0 {
		return 0
	}

	padded := padEdge(samples, frameLength/2)
	if len(padded) < frameLength {
		return 0
	}

	// crossing[i] is true when padded[i] and padded[i-1] differ in sign.
	crossing := make([]bool, len(padded))
	prev := positive(padded[0])
	for i := 1; i < len(padded); i++ {
		cur := positive(padded[i])
		crossing[i] = cur != prev
		prev = cur
	}

	frames := 1 + (len(padded)-frameLength)/hopLength
	var total float64
	for f := 0; f < frames; f++ {
		start := f * hopLength
		n := 0
		// The first sample of a frame has no in-frame predecessor.
		for i := start + 1; i < start+frameLength; i++ {
			if crossing[i] {
				n++
			}
		}
		total += float64(n) / float64(frameLength)
	}

	return total / float64(frames)
}

func positive(s float32) bool {
	if math.Abs(float64(s)) <= zeroEpsilon {
		return true
	}
	return !math.Signbit(float64(s))
}

func padEdge(samples []float32, pad int) []float32 {
	out := make([]float32, len(samples)+2*pad)
	first, last := samples[0], samples[len(samples)-1]
	for i := 0; i < pad; i++ {
		out[i] = first
		out[len(out)-1-i] = last
	}
	copy(out[pad:], samples)
	return out
}
