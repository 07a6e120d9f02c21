package server

import (
	"context"
	"time"

	"callcoach-server-golang/internal/app/server/api"
	"callcoach-server-golang/internal/config"
	redisdb "callcoach-server-golang/internal/db/redis"
	"callcoach-server-golang/internal/domain/cache"
	"callcoach-server-golang/internal/domain/capture"
	"callcoach-server-golang/internal/domain/compress"
	"callcoach-server-golang/internal/domain/dynamics"
	"callcoach-server-golang/internal/domain/transcribe"
	log "callcoach-server-golang/logger"
)

// App 统一管理压缩器和HTTP服务
type App struct {
	config     *config.Config
	compressor *compress.Compressor
	apiServer  *api.ApiServer
}

func NewApp(cfg *config.Config) *App {
	app := &App{config: cfg}

	compressor := NewCompressor(cfg)
	app.compressor = compressor

	opts := []api.ApiServerOption{
		api.WithDefaultOptions(cfg.Compress.Options()),
		api.WithMaxUpload(cfg.Transcribe.MaxUpload),
		api.WithHealth(func(ctx context.Context) map[string]bool {
			if !cfg.Cache.Enable {
				return nil
			}
			return map[string]bool{"redis": redisdb.IsHealthy(ctx)}
		}),
	}
	if cfg.Transcribe.URL != "" {
		opts = append(opts, api.WithTranscriber(transcribe.NewClient(
			cfg.Transcribe.URL,
			transcribe.WithTimeout(cfg.Transcribe.Timeout),
			transcribe.WithAuthToken(cfg.Transcribe.Token),
			transcribe.WithMaxSize(cfg.Transcribe.MaxUpload),
		)))
	} else {
		log.Warn("transcribe.url 未配置，转写接口不可用")
	}
	app.apiServer = api.NewApiServer(cfg.ServerAddress(), compressor, opts...)
	return app
}

// NewCompressor 按配置组装压缩器，缓存不可用时退化为不缓存
func NewCompressor(cfg *config.Config) *compress.Compressor {
	mode := capture.ParseMode(cfg.Compress.CaptureMode)
	renderer := dynamics.NewRenderer(dynamics.DefaultParams(), dynamics.WithWorkers(cfg.Compress.Workers))
	p := renderer.Params()
	log.Infof("压缩器参数: threshold=%.0fdB knee=%.0fdB ratio=%.0f attack=%.3fs release=%.2fs, 采集模式: %s",
		p.Threshold, p.Knee, p.Ratio, p.Attack, p.Release, mode)
	opts := []compress.Option{
		compress.WithRenderer(renderer),
		compress.WithEncoder(capture.NewWebmEncoder(capture.WithMode(mode))),
		compress.WithCaptureGrace(cfg.Compress.CaptureGrace),
	}
	if cfg.Cache.Enable {
		if client := redisdb.GetClient(); client != nil {
			opts = append(opts, compress.WithCache(cache.NewRedisStore(client, cfg.Cache.Prefix), cfg.Cache.TTL))
			log.Infof("压缩结果缓存已启用, ttl: %v", cfg.Cache.TTL)
		} else {
			log.Warn("Redis未初始化，压缩结果缓存已禁用")
		}
	}
	return compress.New(opts...)
}

func (a *App) Compressor() *compress.Compressor {
	return a.compressor
}

// Run 阻塞直到HTTP服务退出
func (a *App) Run() error {
	return a.apiServer.Start()
}

func (a *App) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.apiServer.Shutdown(ctx); err != nil {
		log.Errorf("关闭HTTP服务失败: %v", err)
	}
	if err := redisdb.Close(); err != nil {
		log.Errorf("关闭Redis失败: %v", err)
	}
}
