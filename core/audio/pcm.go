package audio

import "encoding/binary"

// DecodeLinear16 converts little-endian 16-bit PCM bytes into float32 samples
// in [-1, 1]. A trailing odd byte is ignored.
func DecodeLinear16(data []byte) []float32 {
	samples := make([]float32, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		samples = append(samples, float32(sample)/32768.0)
	}
	return samples
}

// EncodeLinear16 converts float32 samples in [-1, 1] into little-endian
// 16-bit PCM bytes. Out-of-range samples are clamped.
func EncodeLinear16(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(sample*32767)))
	}
	return data
}
