//go:build windows

package client

import (
	"os"
	"os/exec"
)

func detachDaemonCommand(cmd *exec.Cmd) {}

func signalDaemonStop(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
