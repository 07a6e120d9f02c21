package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"

	"callcoach-server-golang/internal/data/audio"
)

const (
	webmCodecOpus  = "A_OPUS"
	webmTrackAudio = 2
	webmTrackUID   = 0x6361_6c6c
)

type webmContainer struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment webm.Segment    `ebml:"Segment"`
}

// WebmDecoder 解码WebM封装的Opus（浏览器MediaRecorder的默认输出）
type WebmDecoder struct{}

func (d *WebmDecoder) Decode(ctx context.Context, segment audio.Segment) (*audio.Buffer, error) {
	var container webmContainer
	if err := ebml.Unmarshal(bytes.NewReader(segment.Data), &container); err != nil {
		return nil, fmt.Errorf("解析WebM失败: %v", err)
	}

	var track *webm.TrackEntry
	for i := range container.Segment.Tracks.TrackEntry {
		entry := &container.Segment.Tracks.TrackEntry[i]
		if entry.TrackType == webmTrackAudio || entry.Audio != nil {
			track = entry
			break
		}
	}
	if track == nil {
		return nil, fmt.Errorf("WebM中没有音频轨")
	}
	if track.CodecID != webmCodecOpus {
		return nil, fmt.Errorf("%w: webm codec %s", ErrUnsupported, track.CodecID)
	}
	channels := 1
	if track.Audio != nil && track.Audio.Channels > 0 {
		channels = int(track.Audio.Channels)
	}
	preSkip := 0
	if head, ok := parseOpusHead(track.CodecPrivate); ok {
		preSkip = head.PreSkip
		if head.Channels > 0 {
			channels = head.Channels
		}
	}

	var packets [][]byte
	for _, cluster := range container.Segment.Cluster {
		for _, block := range cluster.SimpleBlock {
			if block.TrackNumber == track.TrackNumber {
				packets = append(packets, block.Data...)
			}
		}
		for _, group := range cluster.BlockGroup {
			if group.Block.TrackNumber == track.TrackNumber {
				packets = append(packets, group.Block.Data...)
			}
		}
	}
	return DecodeOpusPackets(ctx, packets, channels, preSkip)
}

// muxFlushTimeout 等待写入协程落盘的上限
const muxFlushTimeout = 5 * time.Second

// bufferCloser 所有音轨关闭后 ebml-go 会关闭底层writer，借此得知数据已经写完
type bufferCloser struct {
	bytes.Buffer
	once sync.Once
	done chan struct{}
}

func (b *bufferCloser) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// WebmMuxer 把Opus帧逐个写入单音轨WebM
type WebmMuxer struct {
	out    *bufferCloser
	writer webm.BlockWriteCloser
	closed bool
}

func NewWebmMuxer(channels int, inputSampleRate int) (*WebmMuxer, error) {
	out := &bufferCloser{done: make(chan struct{})}
	writers, err := webm.NewSimpleBlockWriter(out, []webm.TrackEntry{
		{
			Name:         "Audio",
			TrackNumber:  1,
			TrackUID:     webmTrackUID,
			CodecID:      webmCodecOpus,
			CodecPrivate: OpusHead(channels, inputSampleRate),
			TrackType:    webmTrackAudio,
			Audio: &webm.Audio{
				SamplingFrequency: OpusSampleRate,
				Channels:          uint64(channels),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("创建WebM写入器失败: %v", err)
	}
	return &WebmMuxer{out: out, writer: writers[0]}, nil
}

// WriteFrame timestampMs 为帧起始时间(ms)
func (m *WebmMuxer) WriteFrame(frame []byte, timestampMs int64) error {
	if m.closed {
		return io.ErrClosedPipe
	}
	if _, err := m.writer.Write(true, timestampMs, frame); err != nil {
		return fmt.Errorf("写入WebM块失败: %v", err)
	}
	return nil
}

// Bytes 关闭写入器并返回完整的WebM数据
func (m *WebmMuxer) Bytes() ([]byte, error) {
	if err := m.Close(); err != nil {
		return nil, err
	}
	select {
	case <-m.out.done:
	case <-time.After(muxFlushTimeout):
		return nil, fmt.Errorf("等待WebM写入完成超时")
	}
	return m.out.Bytes(), nil
}

func (m *WebmMuxer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.writer.Close()
}

// MuxWebm 一次性把整段Opus帧写成WebM
func MuxWebm(stream *OpusStream, inputSampleRate int) ([]byte, error) {
	muxer, err := NewWebmMuxer(stream.Channels, inputSampleRate)
	if err != nil {
		return nil, err
	}
	for i, frame := range stream.Frames {
		if err := muxer.WriteFrame(frame, int64(i*OpusFrameDuration)); err != nil {
			muxer.Close()
			return nil, err
		}
	}
	return muxer.Bytes()
}
