package codec

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gopxl/beep"
	"gopkg.in/hraban/opus.v2"

	"callcoach-server-golang/internal/data/audio"
)

const (
	// OpusSampleRate Ogg/WebM 容器里的Opus统一按48kHz编解码
	OpusSampleRate = 48000
	// OpusFrameDuration 每帧时长(ms)
	OpusFrameDuration = 20
	// OpusFrameSize 每帧每声道采样数
	OpusFrameSize = OpusSampleRate * OpusFrameDuration / 1000
	// OpusPreSkip libopus在48kHz下的默认前导延迟
	OpusPreSkip = 312

	opusMinBitrate   = 500
	opusMaxBitrate   = 512000
	opusMaxPacket    = 4000
	opusMaxFrameSize = 5760 // 120ms@48kHz
	resampleQuality  = 4
)

// OpusStream 按帧编码好的Opus数据
type OpusStream struct {
	Channels int
	Frames   [][]byte
}

// DurationMs 按帧数估算的时长
func (s *OpusStream) DurationMs() int64 {
	return int64(len(s.Frames) * OpusFrameDuration)
}

// OpusChannels Opus只支持单/双声道，其他声道数都混成单声道
func OpusChannels(numChannels int) int {
	if numChannels == 2 {
		return 2
	}
	return 1
}

// OpusHead 生成Opus标识头(RFC 7845 5.1)，用作WebM CodecPrivate
func OpusHead(channels int, inputSampleRate int) []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:], OpusPreSkip)
	binary.LittleEndian.PutUint32(head[12:], uint32(inputSampleRate))
	binary.LittleEndian.PutUint16(head[16:], 0)
	head[18] = 0
	return head
}

type opusHeadInfo struct {
	Channels   int
	PreSkip    int
	SampleRate int
}

// parseOpusHead 解析 OpusHead，WebM 的 CodecPrivate 就是它
func parseOpusHead(head []byte) (opusHeadInfo, bool) {
	if len(head) < 19 || string(head[:8]) != "OpusHead" {
		return opusHeadInfo{}, false
	}
	return opusHeadInfo{
		Channels:   int(head[9]),
		PreSkip:    int(binary.LittleEndian.Uint16(head[10:12])),
		SampleRate: int(binary.LittleEndian.Uint32(head[12:16])),
	}, true
}

// bufferStreamer 把Buffer包装成beep.Streamer，供重采样使用
type bufferStreamer struct {
	buf *audio.Buffer
	pos int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frames := s.buf.Frames()
	if s.pos >= frames {
		return 0, false
	}
	numChannels := s.buf.NumChannels()
	for n < len(samples) && s.pos < frames {
		switch numChannels {
		case 2:
			samples[n][0] = float64(s.buf.Channels[0][s.pos])
			samples[n][1] = float64(s.buf.Channels[1][s.pos])
		default:
			var sum float64
			for ch := 0; ch < numChannels; ch++ {
				sum += float64(s.buf.Channels[ch][s.pos])
			}
			mono := sum / float64(numChannels)
			samples[n][0], samples[n][1] = mono, mono
		}
		n++
		s.pos++
	}
	return n, true
}

func (s *bufferStreamer) Err() error {
	return nil
}

// ToOpusLayout 重采样到48kHz并把声道整理成Opus支持的布局
func ToOpusLayout(ctx context.Context, buf *audio.Buffer) (*audio.Buffer, error) {
	channels := OpusChannels(buf.NumChannels())
	var streamer beep.Streamer = &bufferStreamer{buf: buf}
	expected := buf.Frames()
	if buf.SampleRate != OpusSampleRate {
		streamer = beep.Resample(resampleQuality, beep.SampleRate(buf.SampleRate), beep.SampleRate(OpusSampleRate), streamer)
		expected = int(int64(buf.Frames()) * OpusSampleRate / int64(buf.SampleRate))
	}

	out := &audio.Buffer{SampleRate: OpusSampleRate, Channels: make([][]float32, channels)}
	for ch := range out.Channels {
		out.Channels[ch] = make([]float32, 0, expected)
	}
	samples := make([][2]float64, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := streamer.Stream(samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				out.Channels[ch] = append(out.Channels[ch], float32(samples[i][ch]))
			}
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("重采样失败: %v", err)
	}
	return out, nil
}

// OpusFrameEncoder 逐帧把48kHz PCM编码成Opus
type OpusFrameEncoder struct {
	enc      *opus.Encoder
	buf      *audio.Buffer
	channels int
	pos      int
	pcm      []int16
	packet   []byte
}

// NewOpusFrameEncoder buf 必须已经是 ToOpusLayout 的输出
func NewOpusFrameEncoder(buf *audio.Buffer, bitrate int) (*OpusFrameEncoder, error) {
	if buf.SampleRate != OpusSampleRate {
		return nil, fmt.Errorf("opus encoder needs %d Hz, got %d", OpusSampleRate, buf.SampleRate)
	}
	channels := buf.NumChannels()
	enc, err := opus.NewEncoder(OpusSampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("创建Opus编码器失败: %v", err)
	}
	if err := enc.SetBitrate(clampBitrate(bitrate)); err != nil {
		return nil, fmt.Errorf("设置比特率失败: %v", err)
	}
	return &OpusFrameEncoder{
		enc:      enc,
		buf:      buf,
		channels: channels,
		pcm:      make([]int16, OpusFrameSize*channels),
		packet:   make([]byte, opusMaxPacket),
	}, nil
}

func (e *OpusFrameEncoder) Channels() int {
	return e.channels
}

// FrameCount 编码全部数据需要的帧数，最后不足一帧的部分补零
func (e *OpusFrameEncoder) FrameCount() int {
	return (e.buf.Frames() + OpusFrameSize - 1) / OpusFrameSize
}

// Next 编码下一帧，没有数据时返回 nil, false
func (e *OpusFrameEncoder) Next() ([]byte, bool, error) {
	frames := e.buf.Frames()
	if e.pos >= frames {
		return nil, false, nil
	}
	for i := 0; i < OpusFrameSize; i++ {
		for ch := 0; ch < e.channels; ch++ {
			var sample float32
			if e.pos+i < frames {
				sample = e.buf.Channels[ch][e.pos+i]
			}
			e.pcm[i*e.channels+ch] = floatToInt16(sample)
		}
	}
	e.pos += OpusFrameSize

	n, err := e.enc.Encode(e.pcm, e.packet)
	if err != nil {
		return nil, false, fmt.Errorf("编码失败: %v", err)
	}
	frame := make([]byte, n)
	copy(frame, e.packet[:n])
	return frame, true, nil
}

// EncodeOpus 一次性编码整个Buffer
func EncodeOpus(ctx context.Context, buf *audio.Buffer, bitrate int) (*OpusStream, error) {
	laid, err := ToOpusLayout(ctx, buf)
	if err != nil {
		return nil, err
	}
	return encodeLaid(ctx, laid, bitrate)
}

// encodeLaid laid 必须已经是 ToOpusLayout 的输出
func encodeLaid(ctx context.Context, laid *audio.Buffer, bitrate int) (*OpusStream, error) {
	enc, err := NewOpusFrameEncoder(laid, bitrate)
	if err != nil {
		return nil, err
	}
	stream := &OpusStream{Channels: enc.Channels(), Frames: make([][]byte, 0, enc.FrameCount())}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, ok, err := enc.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		stream.Frames = append(stream.Frames, frame)
	}
	return stream, nil
}

// DecodeOpusPackets 把Opus包解码成48kHz Buffer，跳过前 preSkip 个采样
func DecodeOpusPackets(ctx context.Context, packets [][]byte, channels int, preSkip int) (*audio.Buffer, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: opus channel count %d", ErrUnsupported, channels)
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("no opus packets")
	}
	dec, err := opus.NewDecoder(OpusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("创建Opus解码器失败: %v", err)
	}

	pcm := make([]float32, opusMaxFrameSize*channels)
	interleaved := make([]float32, 0, len(packets)*OpusFrameSize*channels)
	for _, packet := range packets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(packet) == 0 {
			continue
		}
		n, err := dec.DecodeFloat32(packet, pcm)
		if err != nil {
			return nil, fmt.Errorf("解码失败: %v", err)
		}
		interleaved = append(interleaved, pcm[:n*channels]...)
	}

	skip := preSkip * channels
	if skip > 0 && skip < len(interleaved) {
		interleaved = interleaved[skip:]
	}
	return audio.FromInterleaved(interleaved, OpusSampleRate, channels), nil
}

func clampBitrate(bitrate int) int {
	if bitrate < opusMinBitrate {
		return opusMinBitrate
	}
	if bitrate > opusMaxBitrate {
		return opusMaxBitrate
	}
	return bitrate
}

func floatToInt16(sample float32) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	if sample < 0 {
		return int16(sample * 0x8000)
	}
	return int16(sample * 0x7FFF)
}

// padFront 在每个声道前面补 n 个静音采样
func padFront(buf *audio.Buffer, n int) *audio.Buffer {
	out := audio.NewBuffer(buf.SampleRate, buf.NumChannels(), buf.Frames()+n)
	for ch := range buf.Channels {
		copy(out.Channels[ch][n:], buf.Channels[ch])
	}
	return out
}
