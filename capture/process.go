package capture

//go:generate go tool mockgen -destination ../internal/testutil/capturemock/mocks.go -package capturemock . Process,Starter,Sink,Notifier

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	"braces.dev/errtrace"
)

// Process is a running capture process.
type Process interface {
	// Stdout returns the process output stream.
	// It reaches EOF when the process exits.
	Stdout() io.Reader
	// Wait waits for the process to exit and releases its resources.
	// It must be called after the output stream is drained.
	Wait() error
	// Kill terminates the process. Killing an exited process is not an error.
	Kill() error
}

// Starter spawns capture processes.
type Starter interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// ExecStarter spawns capture processes with [os/exec].
type ExecStarter struct {
	// Stderr receives the process error output, discarded if nil.
	Stderr io.Writer
}

// Start starts the named program with the given arguments.
// The process outlives ctx, use [Process.Kill] to stop it.
func (s ExecStarter) Start(_ context.Context, name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Stderr = s.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Wait() error { return errtrace.Wrap(p.cmd.Wait()) }

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errtrace.Wrap(err)
	}
	return nil
}
