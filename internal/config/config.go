package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
	redisdb "callcoach-server-golang/internal/db/redis"
	"callcoach-server-golang/internal/domain/cache"
)

// Config 配置文件的类型化视图
type Config struct {
	Server struct {
		Host  string `mapstructure:"host"`
		Port  int    `mapstructure:"port"`
		Pprof struct {
			Enable bool `mapstructure:"enable"`
			Port   int  `mapstructure:"port"`
		} `mapstructure:"pprof"`
	} `mapstructure:"server"`

	Log struct {
		Path   string `mapstructure:"path"`
		File   string `mapstructure:"file"`
		Level  string `mapstructure:"level"`
		MaxAge int    `mapstructure:"max_age"`
		Stdout bool   `mapstructure:"stdout"`
	} `mapstructure:"log"`

	Redis redisdb.Config `mapstructure:"redis"`

	Compress CompressConfig `mapstructure:"compress"`

	Cache struct {
		Enable bool          `mapstructure:"enable"`
		TTL    time.Duration `mapstructure:"ttl"`
		Prefix string        `mapstructure:"prefix"`
	} `mapstructure:"cache"`

	Transcribe struct {
		URL       string        `mapstructure:"url"`
		Token     string        `mapstructure:"token"`
		Timeout   time.Duration `mapstructure:"timeout"`
		MaxUpload int           `mapstructure:"max_upload"`
	} `mapstructure:"transcribe"`
}

type CompressConfig struct {
	Quality      float64 `mapstructure:"quality"`
	Bitrate      int     `mapstructure:"bitrate"`
	Format       string  `mapstructure:"format"`
	CaptureGrace float64 `mapstructure:"capture_grace"`
	CaptureMode  string  `mapstructure:"capture_mode"`
	Workers      int     `mapstructure:"workers"`
}

// Options 配置中的默认压缩参数
func (c CompressConfig) Options() audio.Options {
	return audio.Options{Quality: c.Quality, Bitrate: c.Bitrate, Format: c.Format}.WithDefaults()
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SetDefaults 在读取配置文件之前调用
func SetDefaults(v *viper.Viper) {
	def := audio.DefaultOptions()
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8989)
	v.SetDefault("server.pprof.port", 6060)
	v.SetDefault("log.path", "logs/")
	v.SetDefault("log.file", "callcoach.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_age", 7)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("compress.quality", def.Quality)
	v.SetDefault("compress.bitrate", def.Bitrate)
	v.SetDefault("compress.format", def.Format)
	v.SetDefault("compress.capture_grace", 0.2)
	v.SetDefault("compress.capture_mode", constants.CaptureModeDirect)
	v.SetDefault("compress.workers", 4)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.prefix", cache.DefaultPrefix)
	v.SetDefault("transcribe.timeout", 120*time.Second)
	v.SetDefault("transcribe.max_upload", constants.MaxUploadSize)
}

// Load 从viper读取并校验
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Compress.Format = strings.ToLower(strings.TrimSpace(c.Compress.Format))
	c.Compress.CaptureMode = strings.ToLower(strings.TrimSpace(c.Compress.CaptureMode))

	if c.Compress.CaptureGrace < 0 {
		return nil, fmt.Errorf("compress.capture_grace must be >= 0, got %v", c.Compress.CaptureGrace)
	}
	switch c.Compress.CaptureMode {
	case "", constants.CaptureModeDirect, constants.CaptureModePaced:
	default:
		return nil, fmt.Errorf("unknown compress.capture_mode %q", c.Compress.CaptureMode)
	}
	switch c.Compress.Format {
	case "", constants.FormatWebm, constants.FormatOgg, constants.FormatMp3:
	default:
		return nil, fmt.Errorf("unknown compress.format %q", c.Compress.Format)
	}
	return &c, nil
}

// ReadFile 按扩展名读取json或yaml配置文件
func ReadFile(v *viper.Viper, configFile string) error {
	switch ext := strings.ToLower(strings.TrimPrefix(fileExt(configFile), ".")); ext {
	case "json":
		v.SetConfigType("json")
	case "yaml", "yml":
		v.SetConfigType("yaml")
	default:
		return fmt.Errorf("unsupported config file type: %s", ext)
	}
	v.SetConfigFile(configFile)
	return v.ReadInConfig()
}

func fileExt(name string) string {
	if pos := strings.LastIndex(name, "."); pos != -1 {
		return name[pos:]
	}
	return ""
}
