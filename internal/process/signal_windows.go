//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

func prepare(*exec.Cmd) {}

// terminate has no graceful form on Windows; Stop falls through to kill
// after the graceful timeout.
func terminate(int) error { return nil }

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
