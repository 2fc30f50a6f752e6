package system

import (
	"context"
	"fmt"
	"sync"
)

// FakeRunner is a scripted Runner for tests. Responses are keyed by the
// rendered command line; unscripted commands succeed with empty output.
type FakeRunner struct {
	mu sync.Mutex

	// Responses maps command lines to canned results.
	Responses map[string]*Result

	// Errs maps command lines to run errors.
	Errs map[string]error

	// MissingBinaries fail LookPath.
	MissingBinaries map[string]bool

	// Calls records every executed command line in order.
	Calls []string
}

// NewFakeRunner creates an empty scripted runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Responses:       make(map[string]*Result),
		Errs:            make(map[string]error),
		MissingBinaries: make(map[string]bool),
	}
}

// Script registers a canned result for a command line.
func (f *FakeRunner) Script(cmdline string, result *Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[cmdline] = result
}

// ScriptErr registers a run error for a command line.
func (f *FakeRunner) ScriptErr(cmdline string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errs[cmdline] = err
}

// Run returns the scripted result for the command.
func (f *FakeRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	line := cmd.String()
	f.Calls = append(f.Calls, line)

	if err := f.Errs[line]; err != nil {
		return nil, err
	}
	if result, ok := f.Responses[line]; ok {
		return result, nil
	}
	return &Result{}, nil
}

// LookPath resolves every binary unless scripted missing.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MissingBinaries[name] {
		return "", fmt.Errorf("%s: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

// Called reports whether the command line was executed.
func (f *FakeRunner) Called(cmdline string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Calls {
		if c == cmdline {
			return true
		}
	}
	return false
}
