package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
)

var (
	ErrEmpty       = errors.New("empty audio data")
	ErrUnsupported = errors.New("unsupported audio format")
)

// Decoder 把一段编码音频解成逐声道浮点采样
type Decoder interface {
	Decode(ctx context.Context, segment audio.Segment) (*audio.Buffer, error)
}

// DecoderFunc 让普通函数实现Decoder
type DecoderFunc func(ctx context.Context, segment audio.Segment) (*audio.Buffer, error)

func (f DecoderFunc) Decode(ctx context.Context, segment audio.Segment) (*audio.Buffer, error) {
	return f(ctx, segment)
}

// Registry 按格式分发到具体解码器，格式先按文件头识别，识别不了再看媒体类型
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry 返回注册了 wav/mp3/ogg/webm 解码器的Registry
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	r.Register(constants.FormatWav, &WavDecoder{})
	r.Register(constants.FormatMp3, &Mp3Decoder{})
	r.Register(constants.FormatOgg, &OggDecoder{})
	r.Register(constants.FormatWebm, &WebmDecoder{})
	return r
}

func (r *Registry) Register(format string, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[format] = decoder
}

func (r *Registry) Decode(ctx context.Context, segment audio.Segment) (*audio.Buffer, error) {
	if segment.IsEmpty() {
		return nil, ErrEmpty
	}
	format := DetectFormat(segment)
	r.mu.RLock()
	decoder, ok := r.decoders[format]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, segment.MimeType)
	}
	buf, err := decoder.Decode(ctx, segment)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return buf, nil
}

var (
	magicRiff = []byte("RIFF")
	magicWave = []byte("WAVE")
	magicOgg  = []byte("OggS")
	magicEbml = []byte{0x1A, 0x45, 0xDF, 0xA3}
	magicID3  = []byte("ID3")
)

// DetectFormat 识别音频格式，返回 constants.FormatXxx，无法识别时返回空串
func DetectFormat(segment audio.Segment) string {
	data := segment.Data
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], magicRiff) && bytes.Equal(data[8:12], magicWave):
		return constants.FormatWav
	case bytes.HasPrefix(data, magicOgg):
		return constants.FormatOgg
	case bytes.HasPrefix(data, magicEbml):
		return constants.FormatWebm
	case bytes.HasPrefix(data, magicID3):
		return constants.FormatMp3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return constants.FormatMp3
	}

	switch segment.BaseMimeType() {
	case constants.MimeTypeWav, "audio/x-wav", "audio/wave":
		return constants.FormatWav
	case constants.MimeTypeMp3, "audio/mp3":
		return constants.FormatMp3
	case constants.MimeTypeOgg, "audio/opus":
		return constants.FormatOgg
	case constants.MimeTypeWebm, "video/webm":
		return constants.FormatWebm
	}
	return ""
}
