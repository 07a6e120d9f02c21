package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// WavDecoder 解码PCM WAV
type WavDecoder struct{}

func (d *WavDecoder) Decode(ctx context.Context, segment audio.Segment) (*audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	decoder := wav.NewDecoder(bytes.NewReader(segment.Data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("无效的WAV文件")
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: wav audio format %d", ErrUnsupported, decoder.WavAudioFormat)
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("读取WAV数据失败: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return audio.FromIntBuffer(pcm, int(decoder.BitDepth))
}

// EncodeWav 把Buffer编码成16位PCM WAV（44字节头）
// go-audio/wav 需要 io.WriteSeeker，这里借用临时文件，任何退出路径都会删除
func EncodeWav(ctx context.Context, buf *audio.Buffer) (audio.Segment, error) {
	if err := buf.Validate(); err != nil {
		return audio.Segment{}, err
	}
	if err := ctx.Err(); err != nil {
		return audio.Segment{}, err
	}

	tmp, err := os.CreateTemp("", "callcoach-*.wav")
	if err != nil {
		return audio.Segment{}, fmt.Errorf("创建临时WAV文件失败: %v", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	encoder := wav.NewEncoder(tmp, buf.SampleRate, wavBitDepth, buf.NumChannels(), wavFormatPCM)
	if err := encoder.Write(buf.IntBuffer(wavBitDepth)); err != nil {
		return audio.Segment{}, fmt.Errorf("写入WAV数据失败: %v", err)
	}
	if err := encoder.Close(); err != nil {
		return audio.Segment{}, fmt.Errorf("写入WAV头失败: %v", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return audio.Segment{}, err
	}
	data, err := io.ReadAll(tmp)
	if err != nil {
		return audio.Segment{}, fmt.Errorf("读取临时WAV文件失败: %v", err)
	}
	return audio.NewSegment(data, constants.MimeTypeWav), nil
}
