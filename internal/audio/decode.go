package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/GriffinCanCode/voicerelay/internal/errors"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Limits on the clips Decode accepts. Rates and lengths outside them are
// rejected before any sample buffer is allocated.
const (
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxClipDuration = 5 * time.Minute
)

// Decode sniffs the clip container and decodes it to a mono waveform at the
// clip's native sample rate. Failures are AppErrors coded EMPTY_INPUT,
// UNSUPPORTED_FORMAT or DECODE_FAILED.
func Decode(clip []byte) (pcm PCM, err error) {
	if len(clip) == 0 {
		return PCM{}, errors.New(errors.CodeEmptyInput, "audio clip is empty")
	}

	format := Sniff(clip)

	// Decoders run on untrusted bytes; a panic there is a corrupt clip.
	defer func() {
		if r := recover(); r != nil {
			pcm = PCM{}
			err = errors.Newf(errors.CodeDecodeFailed, "corrupt %s clip: %v", format, r)
		}
	}()

	switch format {
	case FormatWAV:
		pcm, err = decodeWAV(clip)
	case FormatMP3:
		pcm, err = decodeMP3(clip)
	default:
		return PCM{}, errors.New(errors.CodeUnsupportedFormat, "unrecognised audio container").
			WithMetadata("size", fmt.Sprint(len(clip)))
	}
	if err != nil {
		return PCM{}, err
	}
	if len(pcm.Samples) == 0 {
		return PCM{}, errors.Newf(errors.CodeDecodeFailed, "%s clip contains no samples", format)
	}
	return pcm, nil
}

// DecodeAt decodes the clip and resamples it to rate.
func DecodeAt(clip []byte, rate int) (PCM, error) {
	pcm, err := Decode(clip)
	if err != nil {
		return PCM{}, err
	}
	return Resample(pcm, rate), nil
}

func decodeWAV(clip []byte) (PCM, error) {
	d := wav.NewDecoder(bytes.NewReader(clip))
	if !d.IsValidFile() {
		return PCM{}, errors.New(errors.CodeDecodeFailed, "invalid wav header")
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return PCM{}, errors.Newf(errors.CodeUnsupportedFormat, "wav encoding %d is not integer PCM", d.WavAudioFormat)
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return PCM{}, errors.Newf(errors.CodeUnsupportedFormat, "wav bit depth %d", d.BitDepth)
	}

	// The payload cannot hold more frames than the clip has bytes for.
	frameBytes := int64(d.NumChans) * int64(d.BitDepth/8)
	if err := checkLimits(FormatWAV, int(d.SampleRate), int64(len(clip))/frameBytes); err != nil {
		return PCM{}, err
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, errors.Wrap(err, errors.CodeDecodeFailed, "read wav samples")
	}

	channels := int(d.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	bitDepth := int(d.BitDepth)

	scale := float32(int(1) << (bitDepth - 1))
	offset := 0
	if bitDepth == 8 {
		// 8-bit WAV samples are unsigned
		offset = 128
	}

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]-offset) / scale
		}
		out[i] = clamp(sum / float32(channels))
	}

	return PCM{Samples: out, SampleRate: int(d.SampleRate)}, nil
}

// decodeMP3 relies on go-mp3 always producing 16-bit little-endian stereo.
func decodeMP3(clip []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(clip))
	if err != nil {
		return PCM{}, errors.Wrap(err, errors.CodeDecodeFailed, "open mp3 stream")
	}
	// Length is the decoded byte count, four bytes per stereo frame.
	if err := checkLimits(FormatMP3, dec.SampleRate(), dec.Length()/4); err != nil {
		return PCM{}, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, errors.Wrap(err, errors.CodeDecodeFailed, "read mp3 frames")
	}

	frames := len(raw) / 4
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		r := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		out[i] = (float32(l) + float32(r)) / 2 / 32768
	}

	return PCM{Samples: out, SampleRate: dec.SampleRate()}, nil
}

func checkLimits(format Format, rate int, frames int64) error {
	if rate < MinSampleRate || rate > MaxSampleRate {
		return errors.Newf(errors.CodeUnsupportedFormat, "%s sample rate %d Hz outside %d-%d Hz",
			format, rate, MinSampleRate, MaxSampleRate)
	}
	if limit := int64(MaxClipDuration/time.Second) * int64(rate); frames > limit {
		return errors.Newf(errors.CodeUnsupportedFormat, "%s clip exceeds %s", format, MaxClipDuration).
			WithMetadata("frames", fmt.Sprint(frames))
	}
	return nil
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
