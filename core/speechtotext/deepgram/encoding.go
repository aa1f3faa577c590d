package deepgram

import (
	"fmt"

	"github.com/koscakluka/luna/core/audio"
)

type encodingInfo struct {
	SampleRate int
	Channels   int
	Format     string
}

var supportedSampleRates = map[int]bool{8000: true, 16000: true, 24000: true, 32000: true, 48000: true}

// convertEncoding maps a capture encoding onto the listen API parameters.
// Companded formats are only accepted at telephony rate.
func convertEncoding(encoding audio.EncodingInfo) (encodingInfo, error) {
	if !supportedSampleRates[encoding.SampleRate] {
		return encodingInfo{}, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	converted := encodingInfo{SampleRate: encoding.SampleRate, Channels: max(encoding.Channels, 1)}
	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return encodingInfo{}, fmt.Errorf("unsupported sample rate %d for %s encoding", encoding.SampleRate, encoding.Format)
		}
	default:
		return encodingInfo{}, fmt.Errorf("unsupported encoding %q", encoding.Format)
	}
	converted.Format = encoding.Format.Name()

	return converted, nil
}
