package compress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
	"callcoach-server-golang/internal/domain/cache"
	"callcoach-server-golang/internal/domain/capture"
	"callcoach-server-golang/internal/domain/codec"
	"callcoach-server-golang/internal/domain/dynamics"
	log "callcoach-server-golang/logger"
)

// 各阶段的内部错误，只用于日志，不会返回给调用方
var (
	ErrDecode         = errors.New("decode error")
	ErrRender         = errors.New("render error")
	ErrEncode         = errors.New("encode error")
	ErrCapture        = errors.New("capture error")
	ErrCaptureTimeout = errors.New("capture timeout")
)

// DefaultCaptureGrace 重新编码的超时 = 音频时长 * (1 + grace)
const DefaultCaptureGrace = 0.2

// OggEncoderFunc 直接编码Ogg/Opus
type OggEncoderFunc func(ctx context.Context, buf *audio.Buffer, bitrate int) (audio.Segment, error)

// Compressor 上传前的音频压缩：解码 -> 动态压缩 -> 16位WAV -> 有损重编码。
// 任意一步失败都回退，Compress 永远不返回错误。
// 本身无状态，可以被多个协程同时使用。
type Compressor struct {
	decoder      codec.Decoder
	renderer     dynamics.OfflineRenderer
	encoder      capture.RealtimeEncoder
	oggEncoder   OggEncoderFunc
	captureGrace float64
	store        cache.Store
	cacheTTL     time.Duration
}

type Option func(*Compressor)

func WithDecoder(decoder codec.Decoder) Option {
	return func(c *Compressor) {
		c.decoder = decoder
	}
}

func WithRenderer(renderer dynamics.OfflineRenderer) Option {
	return func(c *Compressor) {
		c.renderer = renderer
	}
}

// WithEncoder 设置webm格式使用的实时编码器
func WithEncoder(encoder capture.RealtimeEncoder) Option {
	return func(c *Compressor) {
		c.encoder = encoder
	}
}

func WithOggEncoder(encoder OggEncoderFunc) Option {
	return func(c *Compressor) {
		c.oggEncoder = encoder
	}
}

// WithCaptureGrace 超时余量比例，负数按0处理
func WithCaptureGrace(grace float64) Option {
	return func(c *Compressor) {
		if grace < 0 {
			grace = 0
		}
		c.captureGrace = grace
	}
}

// WithCache 成功的压缩结果按内容哈希缓存 ttl
func WithCache(store cache.Store, ttl time.Duration) Option {
	return func(c *Compressor) {
		c.store = store
		c.cacheTTL = ttl
	}
}

func New(opts ...Option) *Compressor {
	c := &Compressor{
		decoder:      codec.NewRegistry(),
		renderer:     dynamics.NewRenderer(dynamics.DefaultParams()),
		encoder:      capture.NewWebmEncoder(),
		oggEncoder:   codec.EncodeOggOpus,
		captureGrace: DefaultCaptureGrace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CaptureTimeout 重新编码阶段的硬性上限
func (c *Compressor) CaptureTimeout(duration time.Duration) time.Duration {
	return time.Duration(float64(duration) * (1 + c.captureGrace))
}

// Compress 尽力压缩，返回值总是可以直接上传：
// 解码/渲染失败返回原始数据，重新编码失败或超时返回中间WAV
func (c *Compressor) Compress(ctx context.Context, segment audio.Segment, options audio.Options) (result audio.Segment) {
	opts := options.WithDefaults()
	startTs := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("音频压缩panic，使用原始音频: %v", r)
			result = segment
		}
	}()

	var cacheKey string
	if c.store != nil {
		cacheKey = cache.Key(segment, opts)
		if cached, ok := c.lookup(ctx, cacheKey); ok {
			return cached
		}
	}

	out, err := c.run(ctx, segment, opts)
	if err != nil {
		log.Log("original_size", segment.Len(), "fallback_size", out.Len(), "fallback_type", out.MimeType).
			Warnf("音频压缩失败，使用回退结果: %v", err)
		return out
	}

	log.Log("original_size", segment.Len(), "compressed_size", out.Len(), "format", opts.Format).
		Infof("音频压缩完成, 压缩率: %.1f%%, 耗时: %d ms",
			EstimateCompressionRatio(segment.Len(), out.Len()), time.Since(startTs).Milliseconds())

	if c.store != nil {
		if err := c.store.Set(ctx, cacheKey, out, c.cacheTTL); err != nil {
			log.Warnf("写入压缩缓存失败: %v", err)
		}
	}
	return out
}

// run 返回值在出错时已经是应该使用的回退结果
func (c *Compressor) run(ctx context.Context, segment audio.Segment, opts audio.Options) (audio.Segment, error) {
	var decoded *audio.Buffer
	err := guard(ErrDecode, func() (err error) {
		decoded, err = c.decoder.Decode(ctx, segment)
		return err
	})
	if err != nil {
		return segment, err
	}

	var rendered *audio.Buffer
	err = guard(ErrRender, func() (err error) {
		rendered, err = c.renderer.Render(ctx, decoded)
		if err == nil && !rendered.SameShape(decoded) {
			err = fmt.Errorf("shape changed: %s -> %s", decoded.Shape(), rendered.Shape())
		}
		return err
	})
	if err != nil {
		return segment, err
	}

	var wav audio.Segment
	err = guard(ErrEncode, func() (err error) {
		wav, err = codec.EncodeWav(ctx, rendered)
		return err
	})
	if err != nil {
		return segment, err
	}

	timeout := c.CaptureTimeout(rendered.Duration())
	bitrate := opts.TargetBitrate()
	switch opts.Format {
	case constants.FormatWebm:
		out, err := c.capture(ctx, wav, timeout, bitrate)
		if err != nil {
			return wav, err
		}
		return out, nil
	case constants.FormatOgg:
		out, err := withDeadline(ctx, timeout, func(ctx context.Context) (audio.Segment, error) {
			return c.oggEncoder(ctx, rendered, bitrate)
		})
		if err != nil {
			return wav, err
		}
		return out, nil
	default:
		// 没有MP3编码器，如实标记为WAV
		log.Warnf("不支持编码为 %s，返回WAV中间结果", opts.Format)
		return wav, nil
	}
}

// capture 打开采集会话重新编码，会话在所有退出路径上都会被关闭，包括调用方放弃等待
func (c *Compressor) capture(ctx context.Context, wav audio.Segment, timeout time.Duration, bitrate int) (audio.Segment, error) {
	captureCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var session capture.Session
	err := guard(ErrCapture, func() (err error) {
		session, err = c.encoder.Open(captureCtx, bitrate)
		return err
	})
	if err != nil {
		return audio.Segment{}, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warnf("关闭采集会话失败: %v", err)
		}
	}()

	return withDeadline(captureCtx, timeout, func(ctx context.Context) (audio.Segment, error) {
		return session.Record(ctx, wav)
	})
}

type stageResult struct {
	segment audio.Segment
	err     error
}

// withDeadline 在超时内运行fn，fn不响应ctx也不会阻塞调用方
func withDeadline(ctx context.Context, timeout time.Duration, fn func(context.Context) (audio.Segment, error)) (audio.Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stageResult, 1)
	go func() {
		var res stageResult
		res.err = guard(ErrCapture, func() (err error) {
			res.segment, err = fn(ctx)
			return err
		})
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return audio.Segment{}, fmt.Errorf("%w: after %v: %w", ErrCaptureTimeout, timeout, res.err)
			}
			return audio.Segment{}, res.err
		}
		if res.segment.IsEmpty() {
			return audio.Segment{}, fmt.Errorf("%w: empty output", ErrCapture)
		}
		return res.segment, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return audio.Segment{}, fmt.Errorf("%w: after %v", ErrCaptureTimeout, timeout)
		}
		return audio.Segment{}, fmt.Errorf("%w: %w", ErrCapture, ctx.Err())
	}
}

func (c *Compressor) lookup(ctx context.Context, key string) (audio.Segment, bool) {
	cached, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warnf("读取压缩缓存失败: %v", err)
		return audio.Segment{}, false
	}
	if !ok || cached.IsEmpty() {
		return audio.Segment{}, false
	}
	log.Debugf("命中压缩缓存: %s", key)
	return cached, true
}

// guard 执行一个阶段，错误和panic都包装成该阶段的错误
func guard(stage error, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", stage, r)
		}
	}()
	if err := fn(); err != nil {
		if errors.Is(err, stage) {
			return err
		}
		return fmt.Errorf("%w: %w", stage, err)
	}
	return nil
}

// EstimateCompressionRatio 节省的百分比，变大时为负数。originalSize为0时结果为NaN或±Inf，调用方自行判断
func EstimateCompressionRatio(originalSize, compressedSize int) float64 {
	return float64(originalSize-compressedSize) / float64(originalSize) * 100
}
