package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
	"callcoach-server-golang/internal/domain/codec"
	log "callcoach-server-golang/logger"
)

// Mode 决定编码节奏
type Mode string

const (
	// ModeDirect 直接在内存里编码，不等待播放
	ModeDirect Mode = constants.CaptureModeDirect
	// ModePaced 按实时播放节奏逐帧编码，每帧20ms
	ModePaced Mode = constants.CaptureModePaced
)

// ParseMode 无法识别的值按直接编码处理
func ParseMode(s string) Mode {
	if Mode(s) == ModePaced {
		return ModePaced
	}
	return ModeDirect
}

// WebmEncoder 输出 audio/webm (Opus)
type WebmEncoder struct {
	mode Mode
}

type WebmEncoderOption func(*WebmEncoder)

func WithMode(mode Mode) WebmEncoderOption {
	return func(e *WebmEncoder) {
		e.mode = mode
	}
}

func NewWebmEncoder(opts ...WebmEncoderOption) *WebmEncoder {
	e := &WebmEncoder{mode: ModeDirect}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *WebmEncoder) Open(ctx context.Context, bitrate int) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bitrate <= 0 {
		return nil, fmt.Errorf("invalid bitrate: %d", bitrate)
	}
	return &webmSession{
		mode:    e.mode,
		bitrate: bitrate,
		closed:  make(chan struct{}),
	}, nil
}

type webmSession struct {
	mode    Mode
	bitrate int

	mu        sync.Mutex
	recording bool
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *webmSession) Record(ctx context.Context, waveform audio.Segment) (audio.Segment, error) {
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		return audio.Segment{}, ErrSessionClosed
	}
	if s.recording {
		s.mu.Unlock()
		return audio.Segment{}, ErrBusy
	}
	s.recording = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
	}()

	// 会话关闭时中止录制
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	pcm, err := (&codec.WavDecoder{}).Decode(ctx, waveform)
	if err != nil {
		return audio.Segment{}, s.wrapErr(err)
	}

	var data []byte
	if s.mode == ModePaced {
		data, err = s.recordPaced(ctx, pcm)
	} else {
		data, err = s.recordDirect(ctx, pcm)
	}
	if err != nil {
		return audio.Segment{}, s.wrapErr(err)
	}
	return audio.NewSegment(data, constants.MimeTypeWebm), nil
}

func (s *webmSession) recordDirect(ctx context.Context, pcm *audio.Buffer) ([]byte, error) {
	stream, err := codec.EncodeOpus(ctx, pcm, s.bitrate)
	if err != nil {
		return nil, err
	}
	data, err := codec.MuxWebm(stream, pcm.SampleRate)
	if err != nil {
		return nil, err
	}
	log.Debugf("webm采集完成, mode: %s, 时长: %d ms, 大小: %d", s.mode, stream.DurationMs(), len(data))
	return data, nil
}

// recordPaced 第一帧立即写出，之后每个tick写一帧，最后一帧之后不再等待，
// 总耗时约为 时长-20ms
func (s *webmSession) recordPaced(ctx context.Context, pcm *audio.Buffer) ([]byte, error) {
	laid, err := codec.ToOpusLayout(ctx, pcm)
	if err != nil {
		return nil, err
	}
	enc, err := codec.NewOpusFrameEncoder(laid, s.bitrate)
	if err != nil {
		return nil, err
	}
	muxer, err := codec.NewWebmMuxer(enc.Channels(), pcm.SampleRate)
	if err != nil {
		return nil, err
	}
	defer muxer.Close()

	ticker := time.NewTicker(codec.OpusFrameDuration * time.Millisecond)
	defer ticker.Stop()

	var timestamp int64
	for i := 0; ; i++ {
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
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
			}
		}
		if err := muxer.WriteFrame(frame, timestamp); err != nil {
			return nil, err
		}
		timestamp += codec.OpusFrameDuration
	}

	data, err := muxer.Bytes()
	if err != nil {
		return nil, err
	}
	log.Debugf("webm采集完成, mode: %s, 帧数: %d, 大小: %d", s.mode, enc.FrameCount(), len(data))
	return data, nil
}

func (s *webmSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

func (s *webmSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// wrapErr 会话被关闭导致的取消统一报告为 ErrSessionClosed
func (s *webmSession) wrapErr(err error) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return err
}
