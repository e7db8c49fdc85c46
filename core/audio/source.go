package audio

import "context"

// Source is a microphone capture backend. Start begins delivering fixed-size
// float32 mono frames at hardware cadence; the callback runs on the capture
// thread and must never block on downstream work.
type Source interface {
	Start(ctx context.Context, onFrame func(frame []float32)) error
	Close() error
	EncodingInfo() EncodingInfo
}
