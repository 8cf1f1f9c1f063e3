// Package versionlog is a thin abstraction over a local content-versioning
// backend (spec §4.5). It shells out to the system "git" binary, the same
// os/exec-and-wrap-error idiom the teacher's internal/git.WorktreeManager
// uses for worktree lifecycle management, rather than adopting a Go-native
// git library.
package versionlog

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sl4m3/agentmem/internal/types"
)

// maxRetries bounds the exponential back-off applied to transient
// index-lock errors from concurrent commits (spec §4.5).
const maxRetries = 5

const baseBackoff = 20 * time.Millisecond

// Log manages a git repository rooted at Dir as the version log backing a
// semantic store.
type Log struct {
	Dir string
}

// New returns a Log rooted at dir. dir must already exist.
func New(dir string) *Log {
	return &Log{Dir: dir}
}

// Init initializes the git repository if one is not already present, and
// configures a dedicated local identity so commits do not depend on the
// operator's global git config.
func (l *Log) Init() error {
	if l.isRepo() {
		return nil
	}
	if _, err := l.run("init"); err != nil {
		return &types.VersionLogError{Op: "init", Reason: err.Error()}
	}
	if _, err := l.run("config", "user.name", "agentmem"); err != nil {
		return &types.VersionLogError{Op: "init", Reason: err.Error()}
	}
	if _, err := l.run("config", "user.email", "agentmem@localhost"); err != nil {
		return &types.VersionLogError{Op: "init", Reason: err.Error()}
	}
	return nil
}

func (l *Log) isRepo() bool {
	_, err := l.run("rev-parse", "--git-dir")
	return err == nil
}

// Add stages path (relative to Dir, or "." for everything).
func (l *Log) Add(path string) error {
	return l.retrying("add", func() error {
		_, err := l.run("add", "--", path)
		return err
	})
}

// Commit records a commit with the given message. "Nothing to commit"
// responses are treated as success, per spec §4.5.
func (l *Log) Commit(msg string) error {
	return l.retrying("commit", func() error {
		out, err := l.run("commit", "-m", msg, "--allow-empty-message")
		if err != nil {
			if strings.Contains(out, "nothing to commit") || strings.Contains(out, "nothing added to commit") {
				return nil
			}
			return err
		}
		return nil
	})
}

// ResetHard resets the working tree and index to ref (typically a prior
// head hash captured before a failed operation).
func (l *Log) ResetHard(ref string) error {
	return l.retrying("reset_hard", func() error {
		_, err := l.run("reset", "--hard", ref)
		return err
	})
}

// HeadHash returns the current HEAD commit hash, or "" if there is no
// commit yet.
func (l *Log) HeadHash() (string, error) {
	out, err := l.run("rev-parse", "HEAD")
	if err != nil {
		if strings.Contains(out, "unknown revision") || strings.Contains(out, "ambiguous argument") {
			return "", nil
		}
		return "", &types.VersionLogError{Op: "head_hash", Reason: err.Error()}
	}
	return strings.TrimSpace(out), nil
}

// StatusEntry is one line of `git status --porcelain` output.
type StatusEntry struct {
	Code string
	Path string
}

// StatusShort returns the short-form status of the working tree, including
// untracked and modified files not yet committed.
func (l *Log) StatusShort() ([]StatusEntry, error) {
	out, err := l.run("status", "--porcelain")
	if err != nil {
		return nil, &types.VersionLogError{Op: "status_short", Reason: err.Error()}
	}
	var entries []StatusEntry
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 4 {
			continue
		}
		entries = append(entries, StatusEntry{Code: strings.TrimSpace(line[:2]), Path: strings.TrimSpace(line[3:])})
	}
	return entries, nil
}

// retrying runs op with bounded exponential back-off, treating failures
// whose output mentions a transient index lock as retryable. Other errors
// are surfaced immediately, wrapped as a VersionLogError.
func (l *Log) retrying(op string, fn func() error) error {
	var lastErr error
	backoff := baseBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientLockError(lastErr) {
			return &types.VersionLogError{Op: op, Reason: lastErr.Error()}
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return &types.VersionLogError{Op: op, Reason: fmt.Sprintf("exhausted %d retries: %v", maxRetries, lastErr)}
}

func isTransientLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "index.lock") || strings.Contains(msg, "Unable to create")
}

// run executes `git <args...>` in Dir and returns combined stdout+stderr.
func (l *Log) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = l.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
