package desktop

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"
)

// dragStep is the target spacing of intermediate drag positions.
const dragStep = 10 * time.Millisecond

var validButtons = map[string]bool{
	"left":   true,
	"right":  true,
	"center": true,
}

// Input sends mouse and keyboard events through robotgo.
type Input struct {
	mu    sync.Mutex
	sleep func(time.Duration)
}

// NewInput returns an Input.
func NewInput() *Input {
	return &Input{sleep: time.Sleep}
}

// Move places the cursor at p.
func (in *Input) Move(p image.Point) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	robotgo.Move(p.X, p.Y)
	return nil
}

// Click moves to p and clicks button once or twice.
func (in *Input) Click(p image.Point, button string, double bool) error {
	if !validButtons[button] {
		return fmt.Errorf("%w: %q", ErrInvalidButton, button)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	robotgo.Move(p.X, p.Y)
	robotgo.Click(button, double)
	return nil
}

// TypeText types text one character at a time, pausing interval between
// characters.
func (in *Input) TypeText(text string, interval time.Duration) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, r := range text {
		robotgo.TypeStr(string(r))
		if interval > 0 {
			in.sleep(interval)
		}
	}
	return nil
}

// KeyTap presses key with the given modifiers held.
func (in *Input) KeyTap(key string, modifiers ...string) error {
	args := make([]interface{}, len(modifiers))
	for i, m := range modifiers {
		args[i] = m
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if err := robotgo.KeyTap(key, args...); err != nil {
		return fmt.Errorf("tapping %s: %w", key, err)
	}
	return nil
}

// Drag presses the left button at from, moves by (dx, dy) over duration
// and releases.
func (in *Input) Drag(from image.Point, dx, dy int, duration time.Duration) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	robotgo.Move(from.X, from.Y)
	if err := robotgo.Toggle("left"); err != nil {
		return fmt.Errorf("pressing mouse button: %w", err)
	}
	steps := dragPath(from, dx, dy, duration)
	pause := time.Duration(0)
	if len(steps) > 0 {
		pause = duration / time.Duration(len(steps))
	}
	for _, p := range steps {
		robotgo.Move(p.X, p.Y)
		if pause > 0 {
			in.sleep(pause)
		}
	}
	if err := robotgo.Toggle("left", "up"); err != nil {
		return fmt.Errorf("releasing mouse button: %w", err)
	}
	return nil
}

// dragPath returns the intermediate cursor positions of a drag, ending
// exactly at from+(dx, dy).
func dragPath(from image.Point, dx, dy int, duration time.Duration) []image.Point {
	n := int(duration / dragStep)
	if n < 1 {
		n = 1
	}
	path := make([]image.Point, n)
	for i := 1; i <= n; i++ {
		path[i-1] = image.Pt(from.X+dx*i/n, from.Y+dy*i/n)
	}
	return path
}
