package jobs

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
)

// LaunchSpec describes one downloader attempt.
type LaunchSpec struct {
	Program string
	Args    []string
	Dir     string
	Env     []string
}

// Process is a started child the supervisor can wait on and kill.
type Process interface {
	Pid() int
	// Wait blocks until exit and returns the exit code. err is non-nil only
	// when the exit status could not be determined.
	Wait() (int, error)
	// Kill terminates the process and its descendants.
	Kill() error
}

// Launcher starts child processes.
type Launcher interface {
	Launch(spec LaunchSpec) (Process, error)
}

// ExecLauncher starts real processes with stdio detached.
type ExecLauncher struct{}

// Launch starts spec in its own process group with stdin, stdout and
// stderr bound to the null device.
func (ExecLauncher) Launch(spec LaunchSpec) (Process, error) {
	cmd := exec.Command(spec.Program, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	configureProcess(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Program, err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done atomic.Bool
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.done.Store(true)
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (p *execProcess) Kill() error {
	if p.done.Load() {
		return nil
	}
	err := killProcessTree(p.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
