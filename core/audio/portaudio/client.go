// Package portaudio provides a PortAudio-backed microphone capture source.
package portaudio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/avrelja/sidecoach/core/audio"
)

type Client struct {
	frameSize  int
	sampleRate int
	stream     *portaudio.Stream

	in []float32
}

func NewClient(sampleRate, frameSize int) (*Client, error) {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	return &Client{
		frameSize:  frameSize,
		sampleRate: sampleRate,
		stream:     stream,
		in:         in,
	}, nil
}

func (c *Client) Start(ctx context.Context, onFrame func(frame []float32)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := c.stream.Read(); err != nil {
					logger.Warn("failed to read from PortAudio stream", "error", err)
					continue
				}

				frame := make([]float32, c.frameSize)
				copy(frame, c.in)
				onFrame(frame)
			}
		}
	}()

	return nil
}

func (c *Client) Close() error {
	err := c.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("failed to close PortAudio stream: %w", err)
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.sampleRate,
		Format:     audio.EncodingFloat32,
	}
}
