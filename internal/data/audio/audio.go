package audio

import (
	"math"
	"strings"

	"callcoach-server-golang/constants"
)

const (
	DefaultQuality = 0.7
	DefaultBitrate = 64 // kbps
	DefaultFormat  = constants.FormatWebm
)

// Segment 一段完整、可独立解码的音频
type Segment struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
}

func NewSegment(data []byte, mimeType string) Segment {
	return Segment{Data: data, MimeType: mimeType}
}

func (s Segment) Len() int {
	return len(s.Data)
}

func (s Segment) IsEmpty() bool {
	return len(s.Data) == 0
}

// BaseMimeType 去掉参数部分，例如 "audio/webm;codecs=opus" -> "audio/webm"
func (s Segment) BaseMimeType() string {
	return BaseMimeType(s.MimeType)
}

func BaseMimeType(mimeType string) string {
	if pos := strings.Index(mimeType, ";"); pos != -1 {
		mimeType = mimeType[:pos]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// MimeTypeOf 返回输出格式对应的媒体类型
func MimeTypeOf(format string) string {
	switch format {
	case constants.FormatWebm:
		return constants.MimeTypeWebm
	case constants.FormatOgg:
		return constants.MimeTypeOgg
	case constants.FormatMp3:
		return constants.MimeTypeMp3
	case constants.FormatWav:
		return constants.MimeTypeWav
	}
	return ""
}

// ExtensionOf 根据媒体类型返回文件扩展名，用于上传时的文件名
func ExtensionOf(mimeType string) string {
	switch BaseMimeType(mimeType) {
	case constants.MimeTypeWebm, "video/webm":
		return ".webm"
	case constants.MimeTypeOgg, "audio/opus":
		return ".ogg"
	case constants.MimeTypeMp3, "audio/mp3":
		return ".mp3"
	case constants.MimeTypeWav, "audio/x-wav", "audio/wave":
		return ".wav"
	}
	return ".bin"
}

// Options 压缩参数，零值字段取默认值
type Options struct {
	Quality float64 `json:"quality,omitempty" mapstructure:"quality"`
	Bitrate int     `json:"bitrate,omitempty" mapstructure:"bitrate"`
	Format  string  `json:"format,omitempty" mapstructure:"format"`
}

func DefaultOptions() Options {
	return Options{
		Quality: DefaultQuality,
		Bitrate: DefaultBitrate,
		Format:  DefaultFormat,
	}
}

// WithDefaults 补齐未设置的字段，quality截断到[0,1]，未知格式回退到默认格式
func (o Options) WithDefaults() Options {
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.Quality > 1 {
		o.Quality = 1
	}
	if o.Bitrate <= 0 {
		o.Bitrate = DefaultBitrate
	}
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	switch o.Format {
	case constants.FormatWebm, constants.FormatMp3, constants.FormatOgg:
	default:
		o.Format = DefaultFormat
	}
	return o
}

// TargetBitrate 目标码率 bitrate*quality，单位bps
func (o Options) TargetBitrate() int {
	o = o.WithDefaults()
	return int(math.Round(float64(o.Bitrate) * o.Quality * 1000))
}
