package gitsync

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRepoNotFound means the configured repository path does not exist.
	ErrRepoNotFound = errors.New("repo path not found")

	// ErrNotGitRepo means the path exists but has no .git metadata.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrInvalidBranch means the branch name cannot be passed to git safely.
	ErrInvalidBranch = errors.New("invalid branch name")

	// ErrTimeout means git did not finish within the configured timeout and was killed.
	ErrTimeout = errors.New("git pull timed out")
)

// Result is the outcome of one git pull.
type Result struct {
	Branch   string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Success reports whether git exited 0 within the timeout.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0 && !r.TimedOut
}

// ExitError is returned when git ran to completion with a non-zero status.
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("git pull exited with code %d", e.ExitCode)
}
