package desktop

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
)

// Screen captures the primary display.
type Screen struct{}

// NewScreen returns a Screen.
func NewScreen() *Screen {
	return &Screen{}
}

// Bounds returns the primary display rectangle.
func (s *Screen) Bounds() image.Rectangle {
	w, h := robotgo.GetScreenSize()
	return image.Rect(0, 0, w, h)
}

// Capture grabs r. The returned image has its origin at (0,0).
func (s *Screen) Capture(r image.Rectangle) (image.Image, error) {
	r = r.Intersect(s.Bounds())
	if r.Empty() {
		return nil, ErrEmptyRegion
	}

	bit := robotgo.CaptureScreen(r.Min.X, r.Min.Y, r.Dx(), r.Dy())
	if bit == nil {
		return nil, fmt.Errorf("%w: region %v", ErrCapture, r)
	}
	defer robotgo.FreeBitmap(bit)

	img := robotgo.ToImage(bit)
	if img == nil {
		return nil, fmt.Errorf("%w: converting bitmap", ErrCapture)
	}
	return img, nil
}
