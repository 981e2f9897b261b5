package worker

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is the subset of subprocess control the channel needs. The
// production implementation wraps exec.Cmd; tests substitute fakes.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	Kill() error
	// Wait blocks until the process exits and releases its resources.
	// It must be called exactly once, after all pipe reads have finished.
	Wait() error
}

// Spawner launches the worker subprocess and hands back its process handle
// and the three standard streams.
type Spawner interface {
	Spawn(command string, args, env []string) (proc Process, stdin io.WriteCloser, stdout, stderr io.ReadCloser, err error)
}

// ExecSpawner is the production Spawner backed by os/exec.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(command string, args, env []string) (Process, io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	// Termination is managed by the channel (SIGTERM, grace, SIGKILL), so a
	// plain Command is used rather than CommandContext.
	cmd := exec.Command(command, args...)
	cmd.Env = append(os.Environ(), env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("start process: %w", err)
	}

	return &execProcess{cmd: cmd}, stdin, stdout, stderr, nil
}

// execProcess adapts exec.Cmd to the Process interface. Wait goes through
// cmd.Wait so the exec machinery can reap the child and surface ExitError.
type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}
