package deepgram

import (
	"testing"

	"github.com/koscakluka/luna/core/audio"
)

func TestConvertEncoding(t *testing.T) {
	type testCase struct {
		name    string
		in      audio.EncodingInfo
		want    encodingInfo
		wantErr bool
	}

	testCases := []testCase{
		{
			name: "default capture encoding",
			in:   audio.DefaultEncodingInfo(),
			want: encodingInfo{SampleRate: 16000, Channels: 1, Format: "linear16"},
		},
		{
			name: "zero channels means mono",
			in:   audio.EncodingInfo{SampleRate: 48000, Format: audio.EncodingLinear16},
			want: encodingInfo{SampleRate: 48000, Channels: 1, Format: "linear16"},
		},
		{
			name: "mulaw at telephony rate",
			in:   audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw},
			want: encodingInfo{SampleRate: 8000, Channels: 1, Format: "mulaw"},
		},
		{
			name:    "alaw above telephony rate",
			in:      audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingALaw},
			wantErr: true,
		},
		{
			name:    "unsupported sample rate",
			in:      audio.EncodingInfo{SampleRate: 44100, Format: audio.EncodingLinear16},
			wantErr: true,
		},
		{
			name:    "unknown format",
			in:      audio.EncodingInfo{SampleRate: 16000, Format: "opus"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := convertEncoding(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
