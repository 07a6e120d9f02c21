package dynamics

import (
	"fmt"
	"math"
)

// Params 动态压缩参数，含义与 Web Audio DynamicsCompressorNode 一致
type Params struct {
	Threshold float64 // dB
	Knee      float64 // dB
	Ratio     float64
	Attack    float64 // 秒
	Release   float64 // 秒
}

// DefaultParams 录音上传前使用的固定参数
func DefaultParams() Params {
	return Params{
		Threshold: -24,
		Knee:      30,
		Ratio:     12,
		Attack:    0.003,
		Release:   0.25,
	}
}

func (p Params) Validate() error {
	if p.Threshold > 0 || p.Threshold < -100 {
		return fmt.Errorf("threshold out of range: %v", p.Threshold)
	}
	if p.Knee < 0 || p.Knee > 40 {
		return fmt.Errorf("knee out of range: %v", p.Knee)
	}
	if p.Ratio < 1 || p.Ratio > 20 {
		return fmt.Errorf("ratio out of range: %v", p.Ratio)
	}
	if p.Attack < 0 || p.Attack > 1 {
		return fmt.Errorf("attack out of range: %v", p.Attack)
	}
	if p.Release < 0 || p.Release > 1 {
		return fmt.Errorf("release out of range: %v", p.Release)
	}
	return nil
}

// StaticCurve 稳态输入电平(dB)对应的输出电平(dB)，软拐点
func (p Params) StaticCurve(inputDb float64) float64 {
	over := inputDb - p.Threshold
	switch {
	case 2*over < -p.Knee:
		return inputDb
	case p.Knee > 0 && 2*math.Abs(over) <= p.Knee:
		x := over + p.Knee/2
		return inputDb + (1/p.Ratio-1)*x*x/(2*p.Knee)
	default:
		return p.Threshold + over/p.Ratio
	}
}

// MakeupGainDb 自动补偿增益：满幅输入时压缩量的0.6次方
func (p Params) MakeupGainDb() float64 {
	fullRange := p.StaticCurve(0)
	return -fullRange * 0.6
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func linearToDb(v float64) float64 {
	if v <= minLevel {
		return minLevelDb
	}
	return 20 * math.Log10(v)
}

const (
	minLevel   = 1e-6
	minLevelDb = -120
)
