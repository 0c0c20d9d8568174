package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/mattjoyce/hookpull/internal/lock"
	"github.com/mattjoyce/hookpull/internal/log"
)

const (
	// maxOutputBytes caps the amount of stdout and stderr kept from each run.
	maxOutputBytes = 64 * 1024

	// DefaultTimeout bounds a single git pull.
	DefaultTimeout = 30 * time.Second

	// DefaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	DefaultGracePeriod = 5 * time.Second

	lockFileName = "hookpull.lock"
)

// Options configures a GitSyncer.
type Options struct {
	RepoPath    string
	GitBinary   string
	Remote      string
	Timeout     time.Duration
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// GitSyncer pulls one repository.
type GitSyncer struct {
	repoPath    string
	gitBinary   string
	remote      string
	timeout     time.Duration
	gracePeriod time.Duration
	logger      *slog.Logger

	// sem admits one run at a time; waiters give up when their ctx is done.
	sem *semaphore.Weighted
}

// New creates a GitSyncer, filling unset options with defaults.
func New(opts Options) *GitSyncer {
	s := &GitSyncer{
		repoPath:    opts.RepoPath,
		gitBinary:   opts.GitBinary,
		remote:      opts.Remote,
		timeout:     opts.Timeout,
		gracePeriod: opts.GracePeriod,
		logger:      opts.Logger,
		sem:         semaphore.NewWeighted(1),
	}
	if s.gitBinary == "" {
		s.gitBinary = "git"
	}
	if s.remote == "" {
		s.remote = "origin"
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.gracePeriod <= 0 {
		s.gracePeriod = DefaultGracePeriod
	}
	if s.logger == nil {
		s.logger = log.WithComponent("gitsync")
	}
	return s
}

// RepoPath returns the repository this syncer operates on.
func (s *GitSyncer) RepoPath() string { return s.repoPath }

// Check verifies the repository path exists and is a git clone.
func (s *GitSyncer) Check() error {
	if _, err := os.Stat(s.repoPath); err != nil {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, s.repoPath)
	}
	if _, err := os.Stat(filepath.Join(s.repoPath, ".git")); err != nil {
		return fmt.Errorf("%w: %s", ErrNotGitRepo, s.repoPath)
	}
	return nil
}

// ValidateBranch rejects names git would parse as an option or that are empty.
func ValidateBranch(branch string) error {
	if branch == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBranch)
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, branch)
	}
	if strings.ContainsAny(branch, "\x00\n\r") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, branch)
	}
	return nil
}

// Sync runs git pull for branch. ctx bounds only the wait for a running sync
// and for the repository lock; once git is started it runs until it exits or the timeout fires.
//
// A non-nil Result is returned whenever git was started. The error is nil on
// success, *ExitError on a non-zero exit, ErrTimeout on timeout, or a spawn error.
func (s *GitSyncer) Sync(ctx context.Context, branch string) (*Result, error) {
	if err := ValidateBranch(branch); err != nil {
		return nil, err
	}
	if err := s.Check(); err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for running sync: %w", err)
	}
	defer s.sem.Release(1)

	if gitDir := filepath.Join(s.repoPath, ".git"); isDir(gitDir) {
		fl, err := lock.Acquire(ctx, filepath.Join(gitDir, lockFileName))
		if err != nil {
			return nil, fmt.Errorf("lock repository: %w", err)
		}
		defer fl.Release()
		s.logger.Debug("repository lock held", "lock_path", fl.Path())
	}

	return s.run(branch)
}

// run spawns git and enforces the timeout.
func (s *GitSyncer) run(branch string) (*Result, error) {
	args := []string{"pull", s.remote, branch}
	logger := s.logger.With("repo_path", s.repoPath, "branch", branch)

	cmd := exec.Command(s.gitBinary, args...)
	cmd.Dir = s.repoPath
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	// Own process group so the timeout reaches git's children (fetch, ssh) too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = s.gracePeriod

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("spawning git", "binary", s.gitBinary, "args", args, "timeout", s.timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &Result{Branch: branch, ExitCode: -1}, fmt.Errorf("start %s: %w", s.gitBinary, err)
	}
	// Setpgid makes git the group leader; the group outlives it while any member runs.
	pgid := cmd.Process.Pid

	timeoutTimer := time.NewTimer(s.timeout)
	defer timeoutTimer.Stop()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timeoutTimer.C:
		logger.Warn("git pull timed out, sending SIGTERM", "timeout", s.timeout)
		s.signalGroup(cmd, pgid, unix.SIGTERM, logger)

		grace := time.NewTimer(s.gracePeriod)
		defer grace.Stop()

		select {
		case <-waitErr:
			logger.Info("git exited after SIGTERM")
		case <-grace.C:
			logger.Warn("git did not exit after SIGTERM, sending SIGKILL")
			s.signalGroup(cmd, pgid, unix.SIGKILL, logger)
			<-waitErr
		}
		// Children that ignored SIGTERM survive the leader.
		killGroup(pgid, logger)

		return &Result{
			Branch:   branch,
			ExitCode: -1,
			Stdout:   truncate(stdout.String()),
			Stderr:   truncate(stderr.String()),
			Duration: time.Since(start),
			TimedOut: true,
		}, ErrTimeout

	case err := <-waitErr:
		res := &Result{
			Branch:   branch,
			Stdout:   truncate(stdout.String()),
			Stderr:   truncate(stderr.String()),
			Duration: time.Since(start),
		}
		if err == nil {
			return res, nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
		res.ExitCode = -1
		return res, fmt.Errorf("wait for git: %w", err)
	}
}

// signalGroup delivers sig to git's process group, falling back to the process itself.
func (s *GitSyncer) signalGroup(cmd *exec.Cmd, pgid int, sig syscall.Signal, logger *slog.Logger) {
	if err := unix.Kill(-pgid, sig); err != nil {
		if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Error("failed to signal git", "signal", sig.String(), "error", err)
		}
	}
}

// killGroup sends SIGKILL to whatever is left of the group after git was reaped.
func killGroup(pgid int, logger *slog.Logger) {
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		logger.Error("failed to kill git process group", "pgid", pgid, "error", err)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// truncate caps captured output at maxOutputBytes.
func truncate(s string) string {
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes]
	}
	return s
}
