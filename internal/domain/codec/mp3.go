package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gopxl/beep/mp3"

	"callcoach-server-golang/internal/data/audio"
)

const mp3ReadFrames = 1024

// Mp3Decoder 通过beep解码MP3，beep总是给出双声道采样，单声道文件只取左声道
type Mp3Decoder struct{}

func (d *Mp3Decoder) Decode(ctx context.Context, segment audio.Segment) (*audio.Buffer, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(segment.Data)))
	if err != nil {
		return nil, fmt.Errorf("创建MP3解码器失败: %v", err)
	}
	defer streamer.Close()

	numChannels := format.NumChannels
	if numChannels < 1 || numChannels > 2 {
		numChannels = 2
	}
	channels := make([][]float32, numChannels)
	if total := streamer.Len(); total > 0 {
		for ch := range channels {
			channels[ch] = make([]float32, 0, total)
		}
	}

	samples := make([][2]float64, mp3ReadFrames)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := streamer.Stream(samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < numChannels; ch++ {
				channels[ch] = append(channels[ch], float32(samples[i][ch]))
			}
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("MP3解码失败: %v", err)
	}

	return &audio.Buffer{SampleRate: int(format.SampleRate), Channels: channels}, nil
}
