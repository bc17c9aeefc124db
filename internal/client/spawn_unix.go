//go:build unix

package client

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// detachDaemonCommand puts the daemon in its own session so it survives the
// spawning UI process.
func detachDaemonCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func signalDaemonStop(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
