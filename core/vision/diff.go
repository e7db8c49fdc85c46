package vision

import (
	"image"
	"image/color"
)

// maxDiffWidth bounds the comparison resolution; frames are downsampled
// before differencing so the cost stays flat regardless of display size.
const maxDiffWidth = 800

func downsampleGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}

	targetWidth := width
	targetHeight := height
	if width > maxDiffWidth {
		targetWidth = maxDiffWidth
		targetHeight = height * maxDiffWidth / width
		if targetHeight == 0 {
			targetHeight = 1
		}
	}

	gray := image.NewGray(image.Rect(0, 0, targetWidth, targetHeight))
	for y := 0; y < targetHeight; y++ {
		srcY := bounds.Min.Y + y*height/targetHeight
		for x := 0; x < targetWidth; x++ {
			srcX := bounds.Min.X + x*width/targetWidth
			gray.Set(x, y, color.GrayModel.Convert(img.At(srcX, srcY)))
		}
	}
	return gray
}

// frameDifference returns the mean absolute pixel difference between two
// grayscale frames, normalized to [0, 1]. Frames of different dimensions are
// treated as a full change.
func frameDifference(a, b *image.Gray) float64 {
	if a.Bounds() != b.Bounds() {
		return 1.0
	}
	bounds := a.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0.0
	}

	var total int64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			diff := int(a.GrayAt(x, y).Y) - int(b.GrayAt(x, y).Y)
			if diff < 0 {
				diff = -diff
			}
			total += int64(diff)
		}
	}
	return float64(total) / float64(pixels) / 255.0
}
