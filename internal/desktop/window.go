package desktop

import (
	"fmt"
	"image"
	"strings"

	"github.com/go-vgo/robotgo"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
)

// processTable is the slice of robotgo's process API used to find windows.
type processTable interface {
	FindIds(name string) ([]int, error)
	Title(pid int) string
	Bounds(pid int) (x, y, w, h int)
	Activate(pid int) error
}

type robotProcesses struct{}

func (robotProcesses) FindIds(name string) ([]int, error) { return robotgo.FindIds(name) }
func (robotProcesses) Title(pid int) string               { return robotgo.GetTitle(pid) }
func (robotProcesses) Activate(pid int) error             { return robotgo.ActivePid(pid) }

func (robotProcesses) Bounds(pid int) (x, y, w, h int) {
	return robotgo.GetBounds(pid)
}

// Windows finds the target application's top-level window by title.
type Windows struct {
	title   string
	process string
	procs   processTable
}

// NewWindows creates a window finder for the configured target.
func NewWindows(cfg config.TargetConfig) *Windows {
	return &Windows{title: cfg.WindowTitle, process: cfg.ProcessName, procs: robotProcesses{}}
}

// Origin returns the top-left corner of the target window.
func (w *Windows) Origin() (image.Point, error) {
	pid, err := w.find()
	if err != nil {
		return image.Point{}, err
	}
	x, y, _, _ := w.procs.Bounds(pid)
	return image.Pt(x, y), nil
}

// Activate brings the target window to the foreground.
func (w *Windows) Activate() error {
	pid, err := w.find()
	if err != nil {
		return err
	}
	if err := w.procs.Activate(pid); err != nil {
		return fmt.Errorf("activating %q: %w", w.title, err)
	}
	return nil
}

func (w *Windows) find() (int, error) {
	if w.title == "" {
		return 0, fmt.Errorf("%w: no window title configured", ErrWindowNotFound)
	}
	pids, err := w.procs.FindIds(w.process)
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}
	for _, pid := range pids {
		if strings.Contains(w.procs.Title(pid), w.title) {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrWindowNotFound, w.title)
}
