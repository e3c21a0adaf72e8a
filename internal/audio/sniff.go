package audio

import "bytes"

// Sniff detects the container from the clip's leading bytes.
func Sniff(b []byte) Format {
	switch {
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE")):
		return FormatWAV
	case len(b) >= 3 && bytes.Equal(b[0:3], []byte("ID3")):
		return FormatMP3
	case len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return FormatMP3
	}
	return FormatUnknown
}
