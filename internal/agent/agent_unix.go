//go:build unix

package agent

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setupPTYCommand makes the PTY the controlling terminal of a fresh session,
// which shells like fish require.
func setupPTYCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}
}

// terminateProcess delivers SIGTERM to the process group so shell children
// get a chance to clean up too.
func terminateProcess(pid int) {
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		_ = unix.Kill(pid, unix.SIGTERM)
	}
}

func forceKillProcess(pid int) {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
}
