//go:build !linux

package ffmpeg

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr { return nil }

func signalGroup(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if sig == syscall.SIGKILL {
		return proc.Kill()
	}
	if err := proc.Signal(sig); err != nil {
		return proc.Kill()
	}
	return nil
}
