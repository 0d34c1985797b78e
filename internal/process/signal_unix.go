//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// prepare puts the child in its own process group so signals reach any
// helpers it spawns.
func prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(pid int) error {
	return ignoreGone(syscall.Kill(-pid, syscall.SIGTERM))
}

func kill(pid int) error {
	return ignoreGone(syscall.Kill(-pid, syscall.SIGKILL))
}

func ignoreGone(err error) error {
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
