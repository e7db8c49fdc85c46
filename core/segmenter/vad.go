package segmenter

import "math"

// EnergyDetector is the built-in voice-activity scorer. It maps the frame's
// RMS energy onto (0, 1) with p = rms / (rms + floor), so a frame at the
// noise floor scores 0.5. It is a stand-in for a dedicated acoustic model;
// any Detector implementation can replace it.
type EnergyDetector struct {
	// Floor is the RMS level treated as the speech/noise boundary.
	Floor float64
}

const defaultEnergyFloor = 0.02

func (d EnergyDetector) SpeechProbability(frame []float32, _ int) float64 {
	if len(frame) == 0 {
		return 0
	}

	floor := d.Floor
	if floor <= 0 {
		floor = defaultEnergyFloor
	}

	var sum float64
	for _, sample := range frame {
		sum += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	return rms / (rms + floor)
}
