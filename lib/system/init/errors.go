package main

import "fmt"

// SetupError is a fatal boot failure. It names the phase and operation that
// failed and keeps the raw OS error for errors.Is checks.
type SetupError struct {
	Phase string // "mount", "console", "handoff"
	Op    string // syscall-level operation, e.g. "mkdir", "mount", "exec"
	Path  string
	Err   error
}

func (e *SetupError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
