// Package system wraps the host tooling the engine shells out to: the package
// manager, systemd, user management, and database clients. Every wrapper sits
// behind a small interface so handlers and probes are testable without
// touching a real host.
package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external process invocation.
type Command struct {
	// Name is the program to run, resolved through PATH.
	Name string

	// Args are the program arguments.
	Args []string

	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string

	// Stdin is fed to the process when non-empty.
	Stdin string
}

// String renders the command line without environment values, safe for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result captures a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports whether the process exited zero.
func (r *Result) Ok() bool {
	return r.ExitCode == 0
}

// Runner executes host commands. A non-zero exit is reported through the
// Result, not through the error; errors mean the process could not run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands through os/exec on the local host.
type ExecRunner struct{}

// NewExecRunner creates the local host runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and waits for it.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("command name is required")
	}

	execCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("command %s: %w", cmd.String(), ctx.Err())
		}
		return nil, fmt.Errorf("command %s could not start: %w", cmd.String(), err)
	}

	return result, nil
}

// LookPath resolves a program through PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
