package dynamics

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"callcoach-server-golang/internal/data/audio"
	"callcoach-server-golang/internal/util/workqueue"
)

// 每处理这么多帧检查一次ctx
const cancelCheckInterval = 8192

// OfflineRenderer 非实时地处理一整段音频，输出与输入形状相同
type OfflineRenderer interface {
	Render(ctx context.Context, in *audio.Buffer) (*audio.Buffer, error)
}

// Renderer 前馈动态压缩器，各声道共用检测电平
type Renderer struct {
	params  Params
	workers int
}

type RendererOption func(*Renderer)

// WithWorkers 应用增益时的并行度，<=0 时保持默认
func WithWorkers(workers int) RendererOption {
	return func(r *Renderer) {
		if workers > 0 {
			r.workers = workers
		}
	}
}

func NewRenderer(params Params, opts ...RendererOption) *Renderer {
	r := &Renderer{
		params:  params,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Params() Params {
	return r.params
}

func (r *Renderer) Render(ctx context.Context, in *audio.Buffer) (*audio.Buffer, error) {
	if err := r.params.Validate(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	gain, err := r.gainEnvelope(ctx, in)
	if err != nil {
		return nil, err
	}

	out, err := r.applyGain(ctx, in, gain)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !out.SameShape(in) {
		return nil, fmt.Errorf("render changed shape: %s -> %s", in.Shape(), out.Shape())
	}
	return out, nil
}

// applyGain 按区间并行把增益乘到各声道，任一区间失败则整体失败
func (r *Renderer) applyGain(ctx context.Context, in *audio.Buffer, gain []float32) (*audio.Buffer, error) {
	out := audio.NewBuffer(in.SampleRate, in.NumChannels(), in.Frames())
	err := workqueue.ParallelizeChunks(ctx, r.workers, in.Frames(), func(start, end int) {
		g := gain[start:end]
		for ch := range in.Channels {
			src := in.Channels[ch][start:end]
			dst := out.Channels[ch][start:end]
			for i, sample := range src {
				dst[i] = clamp(sample * g[i])
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("apply gain: %w", err)
	}
	return out, nil
}

// gainEnvelope 计算每一帧的线性增益（含补偿增益）
func (r *Renderer) gainEnvelope(ctx context.Context, in *audio.Buffer) ([]float32, error) {
	p := r.params
	frames := in.Frames()
	sampleRate := float64(in.SampleRate)
	attackCoef := smoothingCoef(p.Attack, sampleRate)
	releaseCoef := smoothingCoef(p.Release, sampleRate)
	makeup := p.MakeupGainDb()

	gain := make([]float32, frames)
	var smoothed float64 // 当前增益衰减量(dB)，<=0
	for i := 0; i < frames; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var peak float64
		for _, ch := range in.Channels {
			if v := math.Abs(float64(ch[i])); v > peak {
				peak = v
			}
		}
		levelDb := linearToDb(peak)
		target := p.StaticCurve(levelDb) - levelDb

		if target < smoothed {
			smoothed = attackCoef*smoothed + (1-attackCoef)*target
		} else {
			smoothed = releaseCoef*smoothed + (1-releaseCoef)*target
		}
		gain[i] = float32(dbToLinear(smoothed + makeup))
	}
	return gain, nil
}

// smoothingCoef 一阶平滑系数，时间常数为0时立即跟随
func smoothingCoef(seconds, sampleRate float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return math.Exp(-1 / (seconds * sampleRate))
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
