package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
)

var opusTagsMagic = []byte("OpusTags")

// OggDecoder 解码Ogg封装的Opus。
// oggreader 按页返回数据，这里假设一页只有一个Opus包（浏览器录音和本包的输出都是如此）
type OggDecoder struct{}

func (d *OggDecoder) Decode(ctx context.Context, segment audio.Segment) (*audio.Buffer, error) {
	reader, header, err := oggreader.NewWith(bytes.NewReader(segment.Data))
	if err != nil {
		return nil, fmt.Errorf("解析Ogg头失败: %v", err)
	}

	var packets [][]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, _, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取Ogg页失败: %v", err)
		}
		if bytes.HasPrefix(payload, opusTagsMagic) {
			continue
		}
		packets = append(packets, payload)
	}

	return DecodeOpusPackets(ctx, packets, int(header.Channels), int(header.PreSkip))
}

// oggwriterPreSkip oggwriter 在 OpusHead 里写死的 pre-skip(80ms@48kHz)
const oggwriterPreSkip = 3840

// EncodeOggOpus 直接把Buffer编码成Ogg/Opus，不经过实时采集。
// 头部补静音，使解码器跳过 oggwriterPreSkip 个采样后正好从第一个输入采样开始
func EncodeOggOpus(ctx context.Context, buf *audio.Buffer, bitrate int) (audio.Segment, error) {
	laid, err := ToOpusLayout(ctx, buf)
	if err != nil {
		return audio.Segment{}, err
	}
	stream, err := encodeLaid(ctx, padFront(laid, oggwriterPreSkip-OpusPreSkip), bitrate)
	if err != nil {
		return audio.Segment{}, err
	}
	data, err := MuxOgg(stream)
	if err != nil {
		return audio.Segment{}, err
	}
	return audio.NewSegment(data, constants.MimeTypeOgg), nil
}

// MuxOgg 把Opus帧写成Ogg页，每帧一页，时间戳按48kHz时钟递增
func MuxOgg(stream *OpusStream) ([]byte, error) {
	var out bytes.Buffer
	writer, err := oggwriter.NewWith(&out, OpusSampleRate, uint16(stream.Channels))
	if err != nil {
		return nil, fmt.Errorf("创建Ogg写入器失败: %v", err)
	}

	var timestamp uint32
	for i, frame := range stream.Frames {
		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				SequenceNumber: uint16(i),
				Timestamp:      timestamp,
			},
			Payload: frame,
		}
		if err := writer.WriteRTP(packet); err != nil {
			writer.Close()
			return nil, fmt.Errorf("写入Ogg页失败: %v", err)
		}
		timestamp += OpusFrameSize
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
