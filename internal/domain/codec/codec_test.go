package codec

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
)

// sineBuffer 生成多声道正弦波，每个声道频率不同
func sineBuffer(sampleRate, channels int, seconds float64, amplitude float64) *audio.Buffer {
	frames := int(float64(sampleRate) * seconds)
	buf := audio.NewBuffer(sampleRate, channels, frames)
	for ch := 0; ch < channels; ch++ {
		freq := 440.0 * float64(ch+1)
		for i := 0; i < frames; i++ {
			buf.Channels[ch][i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		}
	}
	return buf
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name    string
		segment audio.Segment
		want    string
	}{
		{"wav magic", audio.NewSegment([]byte("RIFF\x00\x00\x00\x00WAVEfmt "), ""), constants.FormatWav},
		{"ogg magic", audio.NewSegment([]byte("OggS\x00\x02"), "application/octet-stream"), constants.FormatOgg},
		{"webm magic", audio.NewSegment([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, ""), constants.FormatWebm},
		{"id3", audio.NewSegment([]byte("ID3\x03\x00"), ""), constants.FormatMp3},
		{"mp3 frame sync", audio.NewSegment([]byte{0xFF, 0xFB, 0x90, 0x00}, ""), constants.FormatMp3},
		{"mime with params", audio.NewSegment([]byte("garbage"), "audio/webm;codecs=opus"), constants.FormatWebm},
		{"mime wav", audio.NewSegment([]byte("garbage"), "audio/x-wav"), constants.FormatWav},
		{"unknown", audio.NewSegment([]byte("garbage"), "text/plain"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFormat(tc.segment))
		})
	}
}

func TestRegistryRejectsBadInput(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	_, err := registry.Decode(ctx, audio.NewSegment(nil, constants.MimeTypeWebm))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = registry.Decode(ctx, audio.NewSegment([]byte("hello"), "text/plain"))
	assert.ErrorIs(t, err, ErrUnsupported)

	for _, mime := range []string{constants.MimeTypeWebm, constants.MimeTypeOgg, constants.MimeTypeWav, constants.MimeTypeMp3} {
		_, err = registry.Decode(ctx, audio.NewSegment([]byte("definitely not audio"), mime))
		assert.Error(t, err, mime)
	}
}

func TestRegistryCustomDecoder(t *testing.T) {
	registry := NewRegistry()
	want := sineBuffer(8000, 1, 0.1, 0.5)
	registry.Register(constants.FormatWebm, DecoderFunc(func(ctx context.Context, segment audio.Segment) (*audio.Buffer, error) {
		return want, nil
	}))

	got, err := registry.Decode(context.Background(), audio.NewSegment([]byte{0x1A, 0x45, 0xDF, 0xA3}, ""))
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestWavRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := sineBuffer(16000, 2, 0.25, 0.8)

	segment, err := EncodeWav(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, constants.MimeTypeWav, segment.MimeType)
	assert.Equal(t, 44+src.Frames()*2*2, segment.Len())
	assert.Equal(t, constants.FormatWav, DetectFormat(segment))

	decoded, err := NewRegistry().Decode(ctx, segment)
	require.NoError(t, err)
	assert.Equal(t, src.Shape(), decoded.Shape())
	for ch := range src.Channels {
		for i := 0; i < src.Frames(); i += 97 {
			assert.InDelta(t, src.Channels[ch][i], decoded.Channels[ch][i], 1.0/16384)
		}
	}
}

func TestEncodeWavClampsSamples(t *testing.T) {
	buf := &audio.Buffer{SampleRate: 8000, Channels: [][]float32{{2, -2, 1, -1, 0}}}
	segment, err := EncodeWav(context.Background(), buf)
	require.NoError(t, err)

	decoded, err := (&WavDecoder{}).Decode(context.Background(), segment)
	require.NoError(t, err)
	assert.InDelta(t, 0x7FFF/32768.0, decoded.Channels[0][0], 1e-6)
	assert.InDelta(t, -1.0, decoded.Channels[0][1], 1e-6)
	assert.InDelta(t, 0x7FFF/32768.0, decoded.Channels[0][2], 1e-6)
	assert.InDelta(t, -1.0, decoded.Channels[0][3], 1e-6)
	assert.Equal(t, float32(0), decoded.Channels[0][4])
}

func TestEncodeWavRejectsEmpty(t *testing.T) {
	_, err := EncodeWav(context.Background(), &audio.Buffer{SampleRate: 8000})
	assert.Error(t, err)
}

func TestEncodeWavCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EncodeWav(ctx, sineBuffer(8000, 1, 0.1, 0.5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOggRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := sineBuffer(16000, 1, 0.5, 0.5)

	segment, err := EncodeOggOpus(ctx, src, 32000)
	require.NoError(t, err)
	assert.Equal(t, constants.MimeTypeOgg, segment.MimeType)
	assert.Equal(t, constants.FormatOgg, DetectFormat(segment))

	decoded, err := NewRegistry().Decode(ctx, segment)
	require.NoError(t, err)
	assert.Equal(t, OpusSampleRate, decoded.SampleRate)
	assert.Equal(t, 1, decoded.NumChannels())
	// 48kHz下0.5秒约24000个采样，跳过pre-skip后只多出最后一帧的补零
	assert.GreaterOrEqual(t, decoded.Frames(), 24000)
	assert.Less(t, decoded.Frames(), 24000+OpusFrameSize)
}

func TestOggKeepsLeadingAudio(t *testing.T) {
	ctx := context.Background()
	// 前100ms静音，之后是满幅正弦；解码后静音段长度应基本不变
	src := sineBuffer(48000, 1, 0.3, 0.8)
	for i := 0; i < 4800; i++ {
		src.Channels[0][i] = 0
	}
	segment, err := EncodeOggOpus(ctx, src, 64000)
	require.NoError(t, err)
	decoded, err := NewRegistry().Decode(ctx, segment)
	require.NoError(t, err)

	onset := -1
	for i, v := range decoded.Channels[0] {
		if v > 0.2 || v < -0.2 {
			onset = i
			break
		}
	}
	require.NotEqual(t, -1, onset)
	assert.InDelta(t, 4800, onset, 240)
}

func TestPadFront(t *testing.T) {
	buf := &audio.Buffer{SampleRate: 8000, Channels: [][]float32{{1, 2}, {3, 4}}}
	out := padFront(buf, 2)
	assert.Equal(t, [][]float32{{0, 0, 1, 2}, {0, 0, 3, 4}}, out.Channels)
}

func TestWebmRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := sineBuffer(48000, 2, 0.4, 0.5)

	stream, err := EncodeOpus(ctx, src, 64000)
	require.NoError(t, err)
	assert.Equal(t, 2, stream.Channels)
	assert.Equal(t, 20, len(stream.Frames))
	assert.Equal(t, int64(400), stream.DurationMs())

	data, err := MuxWebm(stream, src.SampleRate)
	require.NoError(t, err)
	segment := audio.NewSegment(data, constants.MimeTypeWebm)
	assert.Equal(t, constants.FormatWebm, DetectFormat(segment))

	decoded, err := NewRegistry().Decode(ctx, segment)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.NumChannels())
	// 前导延迟按 CodecPrivate 里的 pre-skip 去掉
	assert.Equal(t, 20*OpusFrameSize-OpusPreSkip, decoded.Frames())
}

func TestToOpusLayoutDownmix(t *testing.T) {
	src := sineBuffer(24000, 3, 0.1, 0.3)
	out, err := ToOpusLayout(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumChannels())
	assert.Equal(t, OpusSampleRate, out.SampleRate)
	assert.InDelta(t, 4800, out.Frames(), 64)
}

func TestOpusHead(t *testing.T) {
	head := OpusHead(2, 44100)
	assert.Len(t, head, 19)
	assert.Equal(t, "OpusHead", string(head[:8]))
	assert.Equal(t, byte(2), head[9])

	info, ok := parseOpusHead(head)
	require.True(t, ok)
	assert.Equal(t, opusHeadInfo{Channels: 2, PreSkip: OpusPreSkip, SampleRate: 44100}, info)

	_, ok = parseOpusHead(head[:10])
	assert.False(t, ok)
	_, ok = parseOpusHead(append([]byte("OpusTags"), head[8:]...))
	assert.False(t, ok)
}

func TestClampBitrate(t *testing.T) {
	assert.Equal(t, opusMinBitrate, clampBitrate(0))
	assert.Equal(t, 44800, clampBitrate(44800))
	assert.Equal(t, opusMaxBitrate, clampBitrate(10_000_000))
}
