// Package capture records microphone clips and plays narrated replies for
// the terminal client.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/GriffinCanCode/voicerelay/internal/audio"
)

// ErrNoInput is returned when no usable microphone is attached.
var ErrNoInput = errors.New("no microphone input device found")

const framesPerBuffer = 1024

// Config for a Recorder
type Config struct {
	SampleRate int
	MaxLength  time.Duration // hard cap on one clip
	Exclude    []string      // device name fragments to skip
	Device     string        // preferred device name fragment, optional
}

// Recorder captures one mono clip at a time from the best available microphone.
type Recorder struct {
	cfg    Config
	device *portaudio.DeviceInfo

	mu        sync.Mutex
	recording bool
}

// NewRecorder initialises portaudio and picks the input device.
func NewRecorder(cfg Config) (*Recorder, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 30 * time.Second
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	devices, err := portaudio.Devices()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	names := make([]string, 0, len(devices))
	byName := make(map[string]*portaudio.DeviceInfo, len(devices))
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		names = append(names, dev.Name)
		byName[dev.Name] = dev
	}

	name := pickDevice(names, cfg.Device, cfg.Exclude)
	if name == "" {
		if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
			name = def.Name
			byName[name] = def
		}
	}
	if name == "" {
		_ = portaudio.Terminate()
		return nil, ErrNoInput
	}

	slog.Info("selected microphone", "device", name, "sample_rate", cfg.SampleRate)
	return &Recorder{cfg: cfg, device: byName[name]}, nil
}

// Device returns the selected input device name.
func (r *Recorder) Device() string { return r.device.Name }

// Record captures until ctx is done or the configured maximum length is
// reached, and returns what was heard.
func (r *Recorder) Record(ctx context.Context) (audio.PCM, error) {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return audio.PCM{}, errors.New("recording already in progress")
	}
	r.recording = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
	}()

	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   r.device,
			Channels: 1,
			Latency:  r.device.DefaultLowInputLatency,
		},
		SampleRate:      float64(r.cfg.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, buf)
	if err != nil {
		return audio.PCM{}, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return audio.PCM{}, err
	}
	defer func() { _ = stream.Stop() }()

	maxSamples := int(r.cfg.MaxLength.Seconds() * float64(r.cfg.SampleRate))
	samples := make([]float32, 0, r.cfg.SampleRate*5)

	for len(samples) < maxSamples {
		select {
		case <-ctx.Done():
			return r.clip(samples), nil
		default:
		}

		if err := stream.Read(); err != nil {
			if len(samples) > 0 {
				slog.Debug("audio read error, keeping partial clip", "device", r.device.Name, "error", err)
				return r.clip(samples), nil
			}
			return audio.PCM{}, err
		}
		samples = append(samples, buf...)
	}

	return r.clip(samples[:maxSamples]), nil
}

func (r *Recorder) clip(samples []float32) audio.PCM {
	return audio.PCM{Samples: samples, SampleRate: r.cfg.SampleRate}
}

// Play writes p to the default output device and returns once it has played
// or ctx is done. It needs portaudio initialised by NewRecorder.
func Play(ctx context.Context, p audio.PCM) error {
	if len(p.Samples) == 0 {
		return nil
	}
	out := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.SampleRate), len(out), out)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer func() { _ = stream.Stop() }()

	for i := 0; i < len(p.Samples); i += len(out) {
		if ctx.Err() != nil {
			return nil
		}
		n := copy(out, p.Samples[i:])
		clear(out[n:])
		if err := stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases portaudio.
func (r *Recorder) Close() error {
	return portaudio.Terminate()
}

// pickDevice chooses a microphone by name. An explicit preference wins;
// otherwise built-in mics beat external ones and loopback devices never qualify.
func pickDevice(names []string, prefer string, exclude []string) string {
	var best string
	for _, name := range names {
		if isExcluded(name, exclude) {
			continue
		}
		if prefer != "" && containsIgnoreCase(name, prefer) {
			return name
		}
		if classifyDevice(name) != sourceMic {
			continue
		}
		if best == "" || preferDevice(name, best) {
			best = name
		}
	}
	if prefer != "" {
		return ""
	}
	return best
}

const (
	sourceMic      = "mic"
	sourceLoopback = "loopback"
)

func classifyDevice(name string) string {
	for _, kw := range []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"} {
		if containsIgnoreCase(name, kw) {
			return sourceLoopback
		}
	}
	for _, kw := range []string{"microphone", "input", "mic", "built-in", "headset"} {
		if containsIgnoreCase(name, kw) {
			return sourceMic
		}
	}
	return ""
}

func isExcluded(name string, exclude []string) bool {
	for _, ex := range exclude {
		if ex != "" && containsIgnoreCase(name, ex) {
			return true
		}
	}
	return false
}

func preferDevice(name, current string) bool {
	for _, p := range []string{"macbook", "built-in"} {
		if containsIgnoreCase(name, p) && !containsIgnoreCase(current, p) {
			return true
		}
	}
	return false
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
