package constants

// 压缩输出格式
const (
	FormatWebm = "webm"
	FormatMp3  = "mp3"
	FormatOgg  = "ogg"
	FormatWav  = "wav"
)

// 媒体类型
const (
	MimeTypeWebm = "audio/webm"
	MimeTypeMp3  = "audio/mpeg"
	MimeTypeOgg  = "audio/ogg"
	MimeTypeWav  = "audio/wav"
)

const (
	CaptureModeDirect = "direct"
	CaptureModePaced  = "paced"
)

const (
	// MaxUploadSize 转写服务接受的最大音频大小
	MaxUploadSize = 25 * 1024 * 1024
	// UploadFieldName 转写服务multipart表单中的音频字段名
	UploadFieldName = "audio"
)
