package audio

import "math"

// Resample converts the waveform to rate by linear interpolation.
func Resample(p PCM, rate int) PCM {
	if p.SampleRate == rate || len(p.Samples) == 0 || p.SampleRate <= 0 || rate <= 0 {
		return PCM{Samples: append([]float32(nil), p.Samples...), SampleRate: rate}
	}

	ratio := float64(rate) / float64(p.SampleRate)
	n := int(math.Round(float64(len(p.Samples)) * ratio))
	if n < 1 {
		n = 1
	}

	in := p.Samples
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) / ratio
		i0 := int(math.Floor(pos))
		if i0 >= len(in) {
			i0 = len(in) - 1
		}
		i1 := i0 + 1
		if i1 >= len(in) {
			i1 = len(in) - 1
		}
		f := float32(pos - float64(i0))
		out[i] = in[i0]*(1-f) + in[i1]*f
	}

	return PCM{Samples: out, SampleRate: rate}
}
