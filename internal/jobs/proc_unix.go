//go:build !windows

package jobs

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree sends SIGKILL to the child's process group so helpers it
// spawned (ffmpeg, aria2c) die with it.
func killProcessTree(proc *os.Process) error {
	if proc == nil || proc.Pid <= 0 {
		return nil
	}
	if pgid, err := unix.Getpgid(proc.Pid); err == nil && pgid > 0 {
		if err := unix.Kill(-pgid, unix.SIGKILL); err == nil || err == unix.ESRCH {
			return nil
		}
	}
	return proc.Kill()
}
