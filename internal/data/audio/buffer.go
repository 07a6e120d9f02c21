package audio

import (
	"fmt"
	"time"

	goaudio "github.com/go-audio/audio"
)

// Buffer 解码后的音频，每个声道一个采样切片，采样值在[-1,1]
// 只在一次压缩调用内存在
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Shape 描述Buffer的形状：声道数、每声道采样数、采样率
type Shape struct {
	Channels   int
	Frames     int
	SampleRate int
}

func (s Shape) String() string {
	return fmt.Sprintf("%d ch x %d frames @ %d Hz", s.Channels, s.Frames, s.SampleRate)
}

// NewBuffer 分配一个静音Buffer
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for i := range b.Channels {
		b.Channels[i] = make([]float32, frames)
	}
	return b
}

func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

func (b *Buffer) Shape() Shape {
	return Shape{Channels: b.NumChannels(), Frames: b.Frames(), SampleRate: b.SampleRate}
}

func (b *Buffer) SameShape(other *Buffer) bool {
	if other == nil {
		return false
	}
	return b.Shape() == other.Shape()
}

// Validate 检查Buffer是否可用于处理
func (b *Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", b.SampleRate)
	}
	if len(b.Channels) == 0 {
		return fmt.Errorf("no channels")
	}
	frames := len(b.Channels[0])
	if frames == 0 {
		return fmt.Errorf("no samples")
	}
	for i, ch := range b.Channels {
		if len(ch) != frames {
			return fmt.Errorf("channel %d has %d frames, want %d", i, len(ch), frames)
		}
	}
	return nil
}

// IntBuffer 转成go-audio的整型交错缓冲区
// 负数乘0x8000，正数乘0x7FFF，超出[-1,1]的部分截断
func (b *Buffer) IntBuffer(bitDepth int) *goaudio.IntBuffer {
	numChannels := b.NumChannels()
	frames := b.Frames()
	negScale := float64(int(1) << (bitDepth - 1))
	posScale := negScale - 1

	data := make([]int, frames*numChannels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			sample := float64(b.Channels[ch][i])
			if sample > 1 {
				sample = 1
			} else if sample < -1 {
				sample = -1
			}
			if sample < 0 {
				data[i*numChannels+ch] = int(sample * negScale)
			} else {
				data[i*numChannels+ch] = int(sample * posScale)
			}
		}
	}
	return &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: numChannels,
			SampleRate:  b.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
}

// FromIntBuffer 把go-audio的整型交错缓冲区拆成逐声道浮点Buffer
func FromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) (*Buffer, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("nil int buffer")
	}
	numChannels := buf.Format.NumChannels
	if numChannels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", numChannels)
	}
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("invalid bit depth: %d", bitDepth)
	}

	frames := len(buf.Data) / numChannels
	out := NewBuffer(buf.Format.SampleRate, numChannels, frames)
	scale := float32(int64(1) << (bitDepth - 1))
	// 8位WAV是无符号的
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			out.Channels[ch][i] = float32(buf.Data[i*numChannels+ch]-offset) / scale
		}
	}
	return out, nil
}

// FromInterleaved 把交错浮点数据拆成逐声道Buffer
func FromInterleaved(samples []float32, sampleRate, numChannels int) *Buffer {
	frames := len(samples) / numChannels
	out := NewBuffer(sampleRate, numChannels, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			out.Channels[ch][i] = samples[i*numChannels+ch]
		}
	}
	return out
}
