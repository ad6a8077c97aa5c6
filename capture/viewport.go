package capture

import (
	"fmt"
	"strings"

	"github.com/fixdesk/remotedesk"
)

// Viewport is the on-screen region whose bounds define normalized pointer
// coordinates.
type Viewport struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

func (v Viewport) Contains(clientX, clientY float64) bool {
	return clientX >= v.Left && clientX <= v.Left+v.Width &&
		clientY >= v.Top && clientY <= v.Top+v.Height
}

// Normalize converts client coordinates into fractions of the viewport.
func (v Viewport) Normalize(clientX, clientY float64) (remotedesk.Point, bool) {
	if v.Empty() {
		return remotedesk.Point{}, false
	}
	return remotedesk.Point{
		X: (clientX - v.Left) / v.Width,
		Y: (clientY - v.Top) / v.Height,
	}, true
}

type Mode int

const (
	// ModeViewportRelative forwards absolute pointer positions; used when
	// the remote screen is visible.
	ModeViewportRelative Mode = iota
	// ModeExclusiveCapture waits for pointer capture and forwards deltas;
	// used without visual feedback.
	ModeExclusiveCapture
)

func (m Mode) String() string {
	switch m {
	case ModeViewportRelative:
		return "viewport"
	case ModeExclusiveCapture:
		return "exclusive"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "viewport", "relative", "":
		return ModeViewportRelative, nil
	case "exclusive", "pointer-lock", "lock":
		return ModeExclusiveCapture, nil
	}
	return 0, fmt.Errorf("unknown capture mode %q", s)
}
