package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookpull/internal/config"
	"github.com/mattjoyce/hookpull/internal/history"
	"github.com/mattjoyce/hookpull/internal/storage"
	"github.com/mattjoyce/hookpull/internal/webhook"
)

const testSecret = "a-long-enough-webhook-secret"

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// run executes the CLI with args and returns exit code, stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runCLI(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

type fixture struct {
	dir        string
	configPath string
	repo       string
	git        string
	history    string
}

// newFixture writes a config pointing at a fake clone and a stand-in git.
func newFixture(t *testing.T, withHistory bool) *fixture {
	t.Helper()
	t.Setenv(config.EnvSecret, "")
	t.Setenv(config.EnvConfigPath, "")

	dir := t.TempDir()
	f := &fixture{
		dir:        dir,
		configPath: filepath.Join(dir, config.DefaultFileName),
		repo:       filepath.Join(dir, "repo"),
		git:        filepath.Join(dir, "git"),
		history:    filepath.Join(dir, "history.db"),
	}

	require.NoError(t, os.MkdirAll(filepath.Join(f.repo, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.repo, ".git", "config"),
		[]byte("[remote \"origin\"]\n\turl = https://example.com/site.git\n"), 0o644))
	require.NoError(t, os.WriteFile(f.git, []byte("#!/bin/sh\necho \"$*\" >> "+filepath.Join(dir, "git.log")+"\n"), 0o755))

	extra := ""
	if withHistory {
		extra = "history:\n  path: " + f.history + "\n"
	}

	cfg := fmt.Sprintf(`service:
  log_level: error
webhook:
  secret: %s
repo:
  path: %s
sync:
  git_binary: %s
  timeout: 5s
%s`, testSecret, f.repo, f.git, extra)
	require.NoError(t, os.WriteFile(f.configPath, []byte(cfg), 0o600))
	return f
}

func TestVersion(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2025-03-01T10:00:00+02:00")

	code, out, _ := run(t, "", "version")
	require.Equal(t, 0, code)
	assert.Equal(t, "hookpull 1.2.3\ncommit: 0123456789ab\nbuilt_at: 2025-03-01T08:00:00Z\n", out)

	code, out, _ = run(t, "", "version", "--json")
	require.Equal(t, 0, code)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versionInfo{Version: "1.2.3", Commit: "0123456789ab", BuildTime: "2025-03-01T08:00:00Z"}, info)
}

func TestVersionRejectsArgs(t *testing.T) {
	code, _, stderr := run(t, "", "version", "extra")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error:")
}

func TestNormalizeBuildTimeUTC(t *testing.T) {
	_, ok := normalizeBuildTimeUTC("unknown")
	assert.False(t, ok)
	_, ok = normalizeBuildTimeUTC("yesterday")
	assert.False(t, ok)
	got, ok := normalizeBuildTimeUTC("2025-01-02T03:04:05.123Z")
	assert.True(t, ok)
	assert.Equal(t, "2025-01-02T03:04:05Z", got)
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := run(t, "", "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestSignWithSecretFlag(t *testing.T) {
	t.Setenv(config.EnvSecret, "")
	body := `{"ref":"refs/heads/main"}`

	code, out, _ := run(t, body, "sign", "--secret", "s3cret")
	require.Equal(t, 0, code)
	assert.Equal(t, webhook.SignPayload([]byte(body), "s3cret")+"\n", out)
}

func TestSignFileWithEnvSecret(t *testing.T) {
	t.Setenv(config.EnvSecret, "from-env")
	payload := filepath.Join(t.TempDir(), "push.json")
	body := []byte(`{"ref":"refs/heads/dev"}`)
	require.NoError(t, os.WriteFile(payload, body, 0o644))

	code, out, _ := run(t, "", "sign", payload)
	require.Equal(t, 0, code)
	assert.Equal(t, webhook.SignPayload(body, "from-env")+"\n", out)
	assert.NoError(t, webhook.VerifySignature(body, strings.TrimSpace(out), "from-env"))
}

func TestSignUsesConfigSecret(t *testing.T) {
	f := newFixture(t, false)

	code, out, _ := run(t, "payload", "sign", "--config", f.configPath)
	require.Equal(t, 0, code)
	assert.Equal(t, webhook.SignPayload([]byte("payload"), testSecret)+"\n", out)
}

func TestSignRefusesPlaceholderSecret(t *testing.T) {
	f := newFixture(t, false)
	data, err := os.ReadFile(f.configPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.configPath,
		[]byte(strings.Replace(string(data), testSecret, config.PlaceholderSecret, 1)), 0o600))

	code, _, stderr := run(t, "payload", "sign", "--config", f.configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no secret configured")
}

func TestConfigCheckValid(t *testing.T) {
	f := newFixture(t, false)

	code, out, _ := run(t, "", "config", "check", "--config", f.configPath)
	assert.Equal(t, 0, code, out)
	assert.Equal(t, "Configuration valid.\n", out)
}

func TestConfigCheckMissingRepo(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, os.RemoveAll(f.repo))

	code, out, stderr := run(t, "", "config", "check", "--config", f.configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "ERROR [repo]")
	assert.Contains(t, stderr, "configuration invalid")
}

func TestConfigCheckJSON(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, os.RemoveAll(filepath.Join(f.repo, ".git")))

	code, out, _ := run(t, "", "config", "check", "--json", "--config", f.configPath)
	assert.Equal(t, 1, code)

	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Category string `json:"category"`
			Message  string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "repo", result.Errors[0].Category)
}

func TestConfigCheckLoadError(t *testing.T) {
	t.Setenv(config.EnvSecret, "")
	code, _, stderr := run(t, "", "config", "check", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "failed to load config")
}

func TestConfigShowMasksSecret(t *testing.T) {
	f := newFixture(t, false)

	code, out, _ := run(t, "", "config", "show", "--config", f.configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, testSecret)
	assert.Contains(t, out, "path: "+f.repo)
	assert.Contains(t, out, "timeout: 5s")

	code, out, _ = run(t, "", "config", "show", "--show-secret", "--config", f.configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, testSecret)
}

func TestConfigLock(t *testing.T) {
	f := newFixture(t, false)
	manifest := filepath.Join(f.dir, config.ChecksumFileName)

	code, out, _ := run(t, "", "config", "lock", "--dry-run", "--config", f.configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Dry run")
	_, err := os.Stat(manifest)
	assert.True(t, os.IsNotExist(err))

	code, out, _ = run(t, "", "config", "lock", "--config", f.configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, config.DefaultFileName)
	_, err = os.Stat(manifest)
	require.NoError(t, err)

	code, _, _ = run(t, "", "config", "check", "--config", f.configPath)
	assert.Equal(t, 0, code)

	// Editing the locked file makes it unloadable.
	fh, err := os.OpenFile(f.configPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = fh.WriteString("# edited\n")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	code, _, stderr := run(t, "", "config", "check", "--config", f.configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "failed to load config")
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, false)

	code, _, stderr := run(t, "", "history", "--config", f.configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "history is disabled")
}

func TestHistoryLists(t *testing.T) {
	f := newFixture(t, true)
	cfg, err := config.Load(f.configPath)
	require.NoError(t, err)

	code, out, _ := run(t, "", "history", "--config", f.configPath)
	require.Equal(t, 0, code)
	assert.Equal(t, "No deliveries recorded.\n", out)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.History.Path)
	require.NoError(t, err)
	store := history.New(db)
	exit := 0
	require.NoError(t, store.Record(ctx, history.Delivery{
		DeliveryID: "abc-123",
		Event:      "push",
		Branch:     "main",
		Status:     http.StatusOK,
		Outcome:    history.OutcomeSynced,
		Message:    "OK - Pull successful",
		ExitCode:   &exit,
	}))
	require.NoError(t, store.Record(ctx, history.Delivery{
		DeliveryID: "def-456",
		Event:      "ping",
		Status:     http.StatusOK,
		Outcome:    history.OutcomeIgnored,
		Message:    "Event ignored",
	}))
	require.NoError(t, db.Close())

	code, out, _ = run(t, "", "history", "--config", f.configPath)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "DELIVERY")
	assert.Contains(t, lines[1], "def-456")
	assert.Contains(t, lines[2], "abc-123")

	code, out, _ = run(t, "", "history", "-n", "1", "--json", "--config", f.configPath)
	require.Equal(t, 0, code)
	var got []history.Delivery
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "def-456", got[0].DeliveryID)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServeHandlesPush(t *testing.T) {
	f := newFixture(t, true)
	addr := freeAddr(t)

	cfg, err := config.Load(f.configPath)
	require.NoError(t, err)
	cfg.Server.Listen = addr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "Webhook server is running!", string(body))

	payload := []byte(`{"ref":"refs/heads/main","repository":{"name":"site"}}`)
	req, err := http.NewRequest(http.MethodPost, base+"/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-GitHub-Delivery", "serve-test")
	req.Header.Set("X-Hub-Signature-256", webhook.SignPayload(payload, testSecret))

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK - Pull successful", string(body))

	gitLog, err := os.ReadFile(filepath.Join(f.dir, "git.log"))
	require.NoError(t, err)
	assert.Equal(t, "pull origin main\n", string(gitLog))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	code, out, _ := run(t, "", "history", "--config", f.configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "serve-test")
	assert.Contains(t, out, "synced")
}

func TestServeConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvSecret, "env-secret")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	if _, err := os.Stat(filepath.Join("/etc", "hookpull", config.DefaultFileName)); err == nil {
		t.Skip("system config present")
	}

	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	opts := &serveOptions{globalOptions: &globalOptions{}, listen: "127.0.0.1:9999", repoPath: "/srv/site"}
	cfg, err := serveConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Webhook.Secret)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Listen)
	assert.Equal(t, "/srv/site", cfg.Repo.Path)
	assert.Equal(t, config.DefaultSyncTimeout, cfg.Sync.Timeout)
	assert.Contains(t, stderr.String(), "using defaults")
}
