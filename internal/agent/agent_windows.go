//go:build windows

package agent

import (
	"os"
	"os/exec"
)

func setupPTYCommand(cmd *exec.Cmd) {}

func terminateProcess(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}

func forceKillProcess(pid int) {
	terminateProcess(pid)
}
