package compress

import (
	"context"

	"callcoach-server-golang/internal/data/audio"
	"callcoach-server-golang/internal/util/workqueue"
)

// CompressAll 并发压缩多段互不相关的音频，结果与输入按下标对应。
// ctx 取消后尚未开始的段原样返回
func (c *Compressor) CompressAll(ctx context.Context, segments []audio.Segment, options audio.Options, workers int) []audio.Segment {
	results := make([]audio.Segment, len(segments))
	copy(results, segments)

	workqueue.ParallelizeUntil(ctx, workers, len(segments), func(piece int) {
		results[piece] = c.Compress(ctx, segments[piece], options)
	})
	return results
}
