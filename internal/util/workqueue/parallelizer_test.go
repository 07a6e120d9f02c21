package workqueue

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelizeUntil(t *testing.T) {
	var sum int64
	ParallelizeUntil(context.Background(), 8, 1000, func(piece int) {
		atomic.AddInt64(&sum, int64(piece))
	})
	assert.Equal(t, int64(999*1000/2), sum)
}

func TestParallelizeUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var count int64
	ParallelizeUntil(ctx, 4, 100, func(piece int) {
		atomic.AddInt64(&count, 1)
	})
	assert.Equal(t, int64(0), count)
}

func TestParallelizeUntilRecoversPanic(t *testing.T) {
	var count int64
	ParallelizeUntil(context.Background(), 1, 3, func(piece int) {
		if piece == 0 {
			panic("boom")
		}
		atomic.AddInt64(&count, 1)
	})
	// 唯一的worker在第一个任务上panic后退出
	assert.Equal(t, int64(0), count)
}

func TestParallelizeChunks(t *testing.T) {
	data := make([]int, 1001)
	err := ParallelizeChunks(context.Background(), 7, len(data), func(start, end int) {
		for i := start; i < end; i++ {
			data[i]++
		}
	})
	assert.NoError(t, err)
	for i, v := range data {
		if v != 1 {
			t.Fatalf("index %d visited %d times", i, v)
		}
	}
}

func TestParallelizeChunksNoPieces(t *testing.T) {
	called := false
	ParallelizeChunks(context.Background(), 4, 0, func(start, end int) {
		called = true
	})
	assert.False(t, called)
}

func TestParallelizeChunksReportsPanic(t *testing.T) {
	var done int64
	err := ParallelizeChunks(context.Background(), 4, 100, func(start, end int) {
		if start == 0 {
			panic("boom")
		}
		atomic.AddInt64(&done, int64(end-start))
	})
	assert.ErrorIs(t, err, ErrChunkPanicked)
	// 其余区间照常完成
	assert.Equal(t, int64(75), done)
}
