package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigOptionsDefaults(t *testing.T) {
	cfg := &Config{Password: "secret", DB: 2}
	opts := cfg.Options()
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
}

func TestConfigOptionsOverride(t *testing.T) {
	cfg := &Config{Host: "redis.internal", Port: 6380, PoolSize: 32, DialTimeout: time.Second}
	opts := cfg.Options()
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, 32, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)
}

func TestInitUnreachable(t *testing.T) {
	// 端口1上不会有Redis
	cfg := &Config{Host: "127.0.0.1", Port: 1, DialTimeout: 200 * time.Millisecond}
	client, err := Init(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Nil(t, GetClient())
	assert.False(t, IsHealthy(context.Background()))
	assert.NoError(t, Close())
}
