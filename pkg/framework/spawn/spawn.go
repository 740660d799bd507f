// Package spawn starts helper programs (editors, file openers) from a plugin
// UI and keeps track of them until they exit.
package spawn

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	gproc "github.com/shirou/gopsutil/v3/process"
)

// ErrNoCommand is returned by Start for an empty argument list
var ErrNoCommand = errors.New("spawn: no command")

// Option configures a command before it is started
type Option func(cmd *exec.Cmd)

// WithStdio connects the standard streams. Nil streams are left unconnected.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(cmd *exec.Cmd) {
		cmd.Stdin = stdin
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}
}

// WithEnv appends variables to the inherited environment
func WithEnv(env ...string) Option {
	return func(cmd *exec.Cmd) {
		cmd.Env = append(os.Environ(), env...)
	}
}

// Process is a started helper program
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Start runs argv[0] with the remaining arguments
func Start(argv []string, opts ...Option) (*Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrNoCommand
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	for _, opt := range opts {
		opt(cmd)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the process id
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Exited reports without blocking whether the process has terminated
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the process has terminated
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process terminates and returns its exit error
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Kill terminates the process and everything it started
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}

	if gp, err := gproc.NewProcess(int32(p.Pid())); err == nil {
		killChildren(gp)
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %d: %w", p.Pid(), err)
	}
	return nil
}

func killChildren(gp *gproc.Process) {
	children, err := gp.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		killChildren(child)
		_ = child.Kill()
	}
}
