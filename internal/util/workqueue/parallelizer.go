package workqueue

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrChunkPanicked 至少有一个区间panic，结果不完整
var ErrChunkPanicked = errors.New("work chunk panicked")

type DoWorkPieceFunc func(piece int)

// DoWorkChunkFunc 处理 [start, end) 区间
type DoWorkChunkFunc func(start, end int)

// ParallelizeUntil 用 workers 个协程并行处理 pieces 个相互独立的任务，
// 直到全部完成或 ctx 被取消。单个任务panic只会结束所在协程。
func ParallelizeUntil(ctx context.Context, workers, pieces int, doWorkPiece DoWorkPieceFunc) {
	if pieces <= 0 {
		return
	}
	var stop <-chan struct{}
	if ctx != nil {
		stop = ctx.Done()
	}

	toProcess := make(chan int, pieces)
	for i := 0; i < pieces; i++ {
		toProcess <- i
	}
	close(toProcess)

	workers = clampWorkers(workers, pieces)

	wg := sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer handleCrash(&wg, nil)
			for piece := range toProcess {
				select {
				case <-stop:
					return
				default:
					doWorkPiece(piece)
				}
			}
		}()
	}
	wg.Wait()
}

// ParallelizeChunks 把 [0, pieces) 切成最多 workers 段连续区间并行处理，
// 适合逐采样这种单个任务很轻的场景。任一区间panic时返回 ErrChunkPanicked
func ParallelizeChunks(ctx context.Context, workers, pieces int, doWorkChunk DoWorkChunkFunc) error {
	if pieces <= 0 {
		return nil
	}
	var stop <-chan struct{}
	if ctx != nil {
		stop = ctx.Done()
	}

	workers = clampWorkers(workers, pieces)
	page := (pieces + workers - 1) / workers

	var panicked atomic.Bool
	wg := sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(workIndex int) {
			defer handleCrash(&wg, &panicked)
			start := page * workIndex
			end := start + page
			if end > pieces {
				end = pieces
			}
			if start >= end {
				return
			}
			select {
			case <-stop:
				return
			default:
				doWorkChunk(start, end)
			}
		}(i)
	}
	wg.Wait()
	if panicked.Load() {
		return ErrChunkPanicked
	}
	return nil
}

func clampWorkers(workers, pieces int) int {
	if workers <= 0 {
		workers = 1
	}
	if pieces < workers {
		workers = pieces
	}
	return workers
}

// handleCrash panicked 可以为nil
func handleCrash(wg *sync.WaitGroup, panicked *atomic.Bool) {
	defer wg.Done()
	if r := recover(); r != nil {
		if panicked != nil {
			panicked.Store(true)
		}
		zap.L().Error("work has panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
	}
}
