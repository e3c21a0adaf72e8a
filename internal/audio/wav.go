package audio

import (
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WriteWAV encodes the waveform as 16-bit mono PCM WAV.
func WriteWAV(w io.WriteSeeker, p PCM) error {
	data := make([]int, len(p.Samples))
	for i, s := range p.Samples {
		data[i] = int(math.Round(float64(clamp(s)) * math.MaxInt16))
	}

	enc := wav.NewEncoder(w, p.SampleRate, wavBitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: p.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// EncodeWAV returns the waveform as WAV bytes. The encoder needs to seek back
// to patch chunk sizes, so the clip is staged in a temp file.
func EncodeWAV(p PCM) ([]byte, error) {
	f, err := os.CreateTemp("", "voicerelay-*.wav")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := WriteWAV(f, p); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}
