// Package doctor checks a loaded hookpull configuration against the host it will run on.
package doctor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/mattjoyce/hookpull/internal/config"
)

// minSecretLength is the shortest secret accepted without a warning.
const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the local filesystem and PATH.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServer(r)
	d.validateSecret(r)
	repoOK := d.validateRepo(r)
	d.validateGitBinary(r)
	if repoOK {
		d.validateRemote(r)
	}
	d.validateHistory(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServer(r *Result) {
	if _, _, err := net.SplitHostPort(d.cfg.Server.Listen); err != nil {
		d.addError(r, "server", "server.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.Server.Listen, err))
	}
}

func (d *Doctor) validateSecret(r *Result) {
	if d.cfg.SecretIsPlaceholder() {
		d.addWarning(r, "webhook", "webhook.secret",
			"secret is unset or still the example value; every delivery will be rejected with 403")
		return
	}
	if len(d.cfg.Webhook.Secret) < minSecretLength {
		d.addWarning(r, "webhook", "webhook.secret",
			fmt.Sprintf("secret is shorter than %d characters", minSecretLength))
	}
}

// validateRepo reports whether the repository looks usable.
func (d *Doctor) validateRepo(r *Result) bool {
	path := d.cfg.Repo.Path
	if path == "" {
		d.addError(r, "repo", "repo.path", "repo.path is required")
		return false
	}
	if d.cfg.RepoPathIsPlaceholder() {
		d.addWarning(r, "repo", "repo.path", fmt.Sprintf("repo.path is still the example value %q", path))
	}
	if !filepath.IsAbs(path) {
		d.addWarning(r, "repo", "repo.path", "repo.path is relative; it resolves against the working directory at startup")
	}

	info, err := os.Stat(path)
	if err != nil {
		d.addError(r, "repo", "repo.path", fmt.Sprintf("repository path not found: %s", path))
		return false
	}
	if !info.IsDir() {
		d.addError(r, "repo", "repo.path", fmt.Sprintf("repository path is not a directory: %s", path))
		return false
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		d.addError(r, "repo", "repo.path", fmt.Sprintf("not a git repository (no .git): %s", path))
		return false
	}
	return true
}

func (d *Doctor) validateGitBinary(r *Result) {
	bin := d.cfg.Sync.GitBinary
	if bin == "" {
		bin = "git"
	}
	if _, err := d.lookPath(bin); err != nil {
		d.addError(r, "sync", "sync.git_binary", fmt.Sprintf("git executable %q not found: %v", bin, err))
	}
}

// validateRemote looks for the configured remote in .git/config. Worktrees
// and submodules keep their config elsewhere and are skipped.
func (d *Doctor) validateRemote(r *Result) {
	remote := d.cfg.Sync.Remote
	if remote == "" {
		remote = "origin"
	}

	gitConfig := filepath.Join(d.cfg.Repo.Path, ".git", "config")
	f, err := os.Open(gitConfig)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	want := fmt.Sprintf(`[remote "%s"]`, remote)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == want {
			return
		}
	}
	d.addWarning(r, "sync", "sync.remote",
		fmt.Sprintf("remote %q is not configured in %s; git pull will fail", remote, gitConfig))
}

func (d *Doctor) validateHistory(r *Result) {
	if !d.cfg.HistoryEnabled() {
		return
	}
	dir := filepath.Dir(d.cfg.History.Path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		d.addError(r, "history", "history.path", fmt.Sprintf("history directory does not exist: %s", dir))
	}
}

// FormatHuman returns a human-readable validation report. Labels are colored
// only when stdout is a terminal.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	errLabel := color.New(color.FgRed, color.Bold).Sprint("ERROR")
	warnLabel := color.New(color.FgYellow).Sprint("WARN ")
	for _, e := range r.Errors {
		writeIssue(&b, errLabel, e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, warnLabel, w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, label string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", label, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
