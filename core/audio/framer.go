package audio

// Framer re-chunks arbitrarily sized linear16 capture callbacks into
// fixed-size float32 frames. Capture devices deliver whatever period size the
// backend negotiated; voice-activity scoring needs exact frame lengths.
//
// Framer is not safe for concurrent use; it is owned by the capture callback.
type Framer struct {
	frameSize int
	leftover  []byte
	onFrame   func(frame []float32)
}

func NewFramer(frameSize int, onFrame func(frame []float32)) *Framer {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if onFrame == nil {
		onFrame = func([]float32) {}
	}
	return &Framer{frameSize: frameSize, onFrame: onFrame}
}

// Push consumes one linear16 capture buffer, emitting a frame callback for
// every complete frame and carrying the remainder into the next call.
func (f *Framer) Push(data []byte) {
	byteFrame := f.frameSize * 2
	data = append(f.leftover, data...)

	offset := 0
	for ; offset+byteFrame <= len(data); offset += byteFrame {
		f.onFrame(DecodeLinear16(data[offset : offset+byteFrame]))
	}

	f.leftover = make([]byte, len(data)-offset)
	copy(f.leftover, data[offset:])
}
