package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
	"callcoach-server-golang/internal/domain/transcribe"
	log "callcoach-server-golang/logger"
)

// Compressor 压缩能力，Compress 不返回错误
type Compressor interface {
	Compress(ctx context.Context, segment audio.Segment, options audio.Options) audio.Segment
}

type Transcriber interface {
	Transcribe(ctx context.Context, segment audio.Segment) (*transcribe.Result, error)
}

// HealthFunc 返回依赖名到是否健康
type HealthFunc func(ctx context.Context) map[string]bool

// ApiServer 对外的HTTP接口
type ApiServer struct {
	addr        string
	compressor  Compressor
	transcriber Transcriber
	defaults    audio.Options
	maxUpload   int64
	health      HealthFunc

	httpServer *http.Server
}

type ApiServerOption func(*ApiServer)

func WithTranscriber(transcriber Transcriber) ApiServerOption {
	return func(s *ApiServer) {
		s.transcriber = transcriber
	}
}

// WithDefaultOptions 请求中没有指定时使用的压缩参数
func WithDefaultOptions(options audio.Options) ApiServerOption {
	return func(s *ApiServer) {
		s.defaults = options.WithDefaults()
	}
}

func WithMaxUpload(size int) ApiServerOption {
	return func(s *ApiServer) {
		if size > 0 {
			s.maxUpload = int64(size)
		}
	}
}

func WithHealth(health HealthFunc) ApiServerOption {
	return func(s *ApiServer) {
		s.health = health
	}
}

func NewApiServer(addr string, compressor Compressor, opts ...ApiServerOption) *ApiServer {
	s := &ApiServer{
		addr:       addr,
		compressor: compressor,
		defaults:   audio.DefaultOptions(),
		maxUpload:  constants.MaxUploadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 注册所有路由
func (s *ApiServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/compress", s.handleCompress)
	mux.HandleFunc("/api/transcribe", s.handleTranscribe)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start 阻塞直到服务关闭
func (s *ApiServer) Start() error {
	log.Infof("HTTP 服务器启动在 http://%s", s.addr)
	log.Infof("压缩接口: POST http://%s/api/compress", s.addr)
	log.Infof("转写接口: POST http://%s/api/transcribe", s.addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *ApiServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
