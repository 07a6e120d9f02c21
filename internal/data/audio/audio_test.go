package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcoach-server-golang/constants"
)

func TestOptionsWithDefaults(t *testing.T) {
	cases := []struct {
		name string
		in   Options
		want Options
	}{
		{"zero", Options{}, Options{Quality: 0.7, Bitrate: 64, Format: constants.FormatWebm}},
		{"keep", Options{Quality: 0.3, Bitrate: 32, Format: constants.FormatOgg}, Options{Quality: 0.3, Bitrate: 32, Format: constants.FormatOgg}},
		{"clamp quality", Options{Quality: 3}, Options{Quality: 1, Bitrate: 64, Format: constants.FormatWebm}},
		{"negative", Options{Quality: -1, Bitrate: -5}, Options{Quality: 0.7, Bitrate: 64, Format: constants.FormatWebm}},
		{"upper format", Options{Format: " MP3 "}, Options{Quality: 0.7, Bitrate: 64, Format: constants.FormatMp3}},
		{"unknown format", Options{Format: "flac"}, Options{Quality: 0.7, Bitrate: 64, Format: constants.FormatWebm}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.WithDefaults())
		})
	}
}

func TestTargetBitrate(t *testing.T) {
	assert.Equal(t, 44800, Options{}.TargetBitrate())
	assert.Equal(t, 64000, Options{Quality: 0.5, Bitrate: 128}.TargetBitrate())
	assert.Equal(t, 16000, Options{Quality: 1, Bitrate: 16}.TargetBitrate())
}

func TestMimeHelpers(t *testing.T) {
	assert.Equal(t, "audio/webm", BaseMimeType("Audio/WebM; codecs=opus"))
	assert.Equal(t, constants.MimeTypeOgg, MimeTypeOf(constants.FormatOgg))
	assert.Equal(t, "", MimeTypeOf("flac"))
	assert.Equal(t, ".webm", ExtensionOf("audio/webm;codecs=opus"))
	assert.Equal(t, ".wav", ExtensionOf("audio/x-wav"))
	assert.Equal(t, ".bin", ExtensionOf("application/octet-stream"))
}

func TestSegmentLen(t *testing.T) {
	s := NewSegment([]byte{1, 2, 3}, constants.MimeTypeWav)
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.IsEmpty())
	assert.True(t, Segment{}.IsEmpty())
}

func TestBufferShape(t *testing.T) {
	b := NewBuffer(16000, 2, 8000)
	assert.Equal(t, Shape{Channels: 2, Frames: 8000, SampleRate: 16000}, b.Shape())
	assert.Equal(t, 500*time.Millisecond, b.Duration())
	assert.True(t, b.SameShape(NewBuffer(16000, 2, 8000)))
	assert.False(t, b.SameShape(NewBuffer(16000, 1, 8000)))
	assert.False(t, b.SameShape(nil))
	assert.NoError(t, b.Validate())
	assert.Equal(t, "2 ch x 8000 frames @ 16000 Hz", b.Shape().String())
}

func TestBufferValidate(t *testing.T) {
	assert.Error(t, (&Buffer{SampleRate: 0, Channels: [][]float32{{0}}}).Validate())
	assert.Error(t, (&Buffer{SampleRate: 8000}).Validate())
	assert.Error(t, NewBuffer(8000, 1, 0).Validate())
	assert.Error(t, (&Buffer{SampleRate: 8000, Channels: [][]float32{{0, 0}, {0}}}).Validate())
}

func TestFromInterleaved(t *testing.T) {
	samples := []float32{0.1, -0.1, 0.2, -0.2, 0.3, -0.3}
	b := FromInterleaved(samples, 8000, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, b.Channels[0])
	assert.Equal(t, []float32{-0.1, -0.2, -0.3}, b.Channels[1])
}

func TestIntBufferConversion(t *testing.T) {
	b := &Buffer{SampleRate: 8000, Channels: [][]float32{{1, -1, 0, 2, -2, 0.5}}}
	ib := b.IntBuffer(16)
	assert.Equal(t, []int{32767, -32768, 0, 32767, -32768, 16383}, ib.Data)
	assert.Equal(t, 16, ib.SourceBitDepth)

	back, err := FromIntBuffer(ib, 16)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, back.Channels[0][0], 1e-4)
	assert.Equal(t, float32(-1), back.Channels[0][1])
	assert.InDelta(t, 0.5, back.Channels[0][5], 1e-4)

	_, err = FromIntBuffer(nil, 16)
	assert.Error(t, err)
}
