package tools

import (
	"math"
	"time"
)

// ScaleToScreen maps a normalized coordinate onto a screen dimension of
// size pixels.
func ScaleToScreen(norm float64, size int) int {
	return int(math.Round(norm * float64(size)))
}

// FrameInterval is the capture period for fps frames per second. Zero or
// negative fps yields zero.
func FrameInterval(fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Second / time.Duration(fps)
}
