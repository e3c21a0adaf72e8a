// Package audio turns encoded clips into normalised mono waveforms.
package audio

import "time"

// Format identifies a clip container.
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

// Extension returns the file extension the upstream transcription API
// expects for the format.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return ".bin"
	}
	return "." + string(f)
}

// PCM is a mono waveform with samples in [-1, 1].
type PCM struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the waveform.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}
