package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"callcoach-server-golang/internal/data/audio"
)

const (
	DefaultPrefix = "callcoach:compress"
	DefaultTTL    = 24 * time.Hour

	fieldMimeType = "mime_type"
	fieldData     = "data"
)

// Store 压缩结果缓存
type Store interface {
	// Get 未命中时返回 ok=false, err=nil
	Get(ctx context.Context, key string) (audio.Segment, bool, error)
	Set(ctx context.Context, key string, segment audio.Segment, ttl time.Duration) error
}

// Key 由音频内容和压缩参数计算缓存键
func Key(segment audio.Segment, opts audio.Options) string {
	h := sha256.New()
	h.Write(segment.Data)
	fmt.Fprintf(h, "|%s|%s|%.3f|%d", segment.BaseMimeType(), opts.Format, opts.Quality, opts.Bitrate)
	return hex.EncodeToString(h.Sum(nil))
}

// RedisStore 每个结果存成一个hash：mime_type + data
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (audio.Segment, bool, error) {
	values, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return audio.Segment{}, false, err
	}
	data, ok := values[fieldData]
	if !ok || data == "" {
		return audio.Segment{}, false, nil
	}
	return audio.NewSegment([]byte(data), values[fieldMimeType]), true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, segment audio.Segment, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	redisKey := s.key(key)
	if err := s.client.HSet(ctx, redisKey, fieldMimeType, segment.MimeType, fieldData, segment.Data).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, redisKey, ttl).Err()
}
