package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
	log "callcoach-server-golang/logger"
)

var (
	ErrEmptyAudio = errors.New("empty audio")
	ErrTooLarge   = errors.New("audio exceeds upload limit")
)

const DefaultTimeout = 120 * time.Second

// Segment 转写结果中的一句，时间单位为秒
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// errorBody 服务端返回的错误格式
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Client 把音频以multipart表单上传到转写服务
type Client struct {
	http    *resty.Client
	url     string
	maxSize int
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

func WithAuthToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.http.SetAuthToken(token)
		}
	}
}

// WithMaxSize 本地上传大小限制，默认25MB
func WithMaxSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		http:    resty.New().SetTimeout(DefaultTimeout),
		url:     url,
		maxSize: constants.MaxUploadSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FileName 上传用的文件名，扩展名与媒体类型一致
func FileName(segment audio.Segment) string {
	return uuid.NewString() + audio.ExtensionOf(segment.MimeType)
}

// Transcribe 上传一段音频并返回转写结果
func (c *Client) Transcribe(ctx context.Context, segment audio.Segment) (*Result, error) {
	if segment.IsEmpty() {
		return nil, ErrEmptyAudio
	}
	if segment.Len() > c.maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, segment.Len(), c.maxSize)
	}

	contentType := segment.MimeType
	if contentType == "" {
		contentType = constants.MimeTypeWebm
	}
	fileName := FileName(segment)

	var result Result
	var failure errorBody
	startTs := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField(constants.UploadFieldName, fileName, contentType, bytes.NewReader(segment.Data)).
		SetResult(&result).
		SetError(&failure).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("transcribe request: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(failure.Error)
		if failure.Details != "" {
			msg += ": " + failure.Details
		}
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("transcribe http %d: %s", resp.StatusCode(), msg)
	}

	log.Log("file", fileName, "size", segment.Len(), "type", contentType).
		Infof("转写完成, 时长: %.1fs, 分段: %d, 耗时: %d ms", result.Duration, len(result.Segments), time.Since(startTs).Milliseconds())
	return &result, nil
}
