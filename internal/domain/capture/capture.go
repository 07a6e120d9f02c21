package capture

import (
	"context"
	"errors"

	"callcoach-server-golang/internal/data/audio"
)

var (
	ErrSessionClosed = errors.New("capture session closed")
	ErrBusy          = errors.New("capture session already recording")
)

// RealtimeEncoder 打开一次采集会话，把中间WAV重新编码成目标格式
type RealtimeEncoder interface {
	// Open bitrate 单位bps
	Open(ctx context.Context, bitrate int) (Session, error)
}

// Session 一次采集会话，独占采集/编码资源。
// Close 可以在 Record 进行中被调用，此时 Record 尽快返回 ErrSessionClosed
type Session interface {
	Record(ctx context.Context, waveform audio.Segment) (audio.Segment, error)
	Close() error
}
