package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/spf13/viper"

	"callcoach-server-golang/internal/config"
	redisdb "callcoach-server-golang/internal/db/redis"
	log "callcoach-server-golang/logger"
)

func Init(configFile string) (*config.Config, error) {
	//init config
	cfg, err := initConfig(configFile)
	if err != nil {
		fmt.Printf("initConfig err: %+v\n", err)
		return nil, err
	}

	//init log
	if err := initLog(cfg); err != nil {
		fmt.Printf("initLog err: %+v\n", err)
		return nil, err
	}

	//init redis，失败时只关闭缓存
	if cfg.Cache.Enable {
		initRedis(cfg)
	}

	return cfg, nil
}

func initConfig(configFile string) (*config.Config, error) {
	v := viper.GetViper()
	config.SetDefaults(v)
	if err := config.ReadFile(v, configFile); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func initLog(cfg *config.Config) error {
	binPath, _ := os.Executable()
	baseDir := filepath.Dir(binPath)
	logPath := fmt.Sprintf("%s/%s%s", baseDir, cfg.Log.Path, cfg.Log.File)

	// 每天轮转一个新文件，保留 max_age 个
	writer, err := rotatelogs.New(
		logPath+".%Y%m%d",
		rotatelogs.WithLinkName(logPath),
		rotatelogs.WithRotationCount(uint(cfg.Log.MaxAge)),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("init log: %w", err)
	}

	if cfg.Log.Stdout {
		log.UseConsole(io.MultiWriter(writer, os.Stdout))
	} else {
		log.SetOutput(writer)
	}
	log.SetLevel(cfg.Log.Level)
	return nil
}

func initRedis(cfg *config.Config) {
	if _, err := redisdb.Init(context.Background(), &cfg.Redis); err != nil {
		log.Errorf("init redis error: %v，压缩缓存将被禁用", err)
	}
}
