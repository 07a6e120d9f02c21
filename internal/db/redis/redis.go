package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	log "callcoach-server-golang/logger"
)

var (
	globalClient *redis.Client
	mu           sync.RWMutex
)

// Config Redis配置，对应配置文件中的 redis.*
type Config struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db" json:"db"`
	// 连接池配置
	PoolSize     int           `mapstructure:"pool_size" json:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" json:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries" json:"max_retries"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	}
}

// Options 把配置转换成 go-redis 的选项，未填写的字段使用默认值
func (c *Config) Options() *redis.Options {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.PoolSize == 0 {
		c.PoolSize = def.PoolSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = def.DialTimeout
	}
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		DialTimeout:  c.DialTimeout,
	}
}

// Init 连接Redis并保存为全局客户端，重复调用会替换旧连接
func Init(ctx context.Context, config *Config) (*redis.Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	client := redis.NewClient(config.Options())

	pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s:%d: %w", config.Host, config.Port, err)
	}

	mu.Lock()
	old := globalClient
	globalClient = client
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	log.Infof("Redis客户端初始化成功: %s:%d db=%d", config.Host, config.Port, config.DB)
	return client, nil
}

// GetClient 未初始化时返回nil，此时压缩缓存不可用
func GetClient() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	return globalClient
}

func IsHealthy(ctx context.Context) bool {
	client := GetClient()
	if client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if globalClient == nil {
		return nil
	}
	stats := globalClient.PoolStats()
	err := globalClient.Close()
	globalClient = nil
	if err != nil {
		log.Errorf("关闭Redis连接失败: %v", err)
		return err
	}
	log.Log("hits", stats.Hits, "misses", stats.Misses, "timeouts", stats.Timeouts).Info("Redis连接已关闭")
	return nil
}
