package config

import "time"

// Placeholder values shipped in the example configuration. A deployment that
// still carries them has not been configured by an operator.
const (
	PlaceholderSecret   = "your_github_secret"
	PlaceholderRepoPath = "/home/main/repo"
)

// Config represents the complete hookpull configuration.
// It is built once at startup and passed to the components that need it.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Server  ServerConfig  `yaml:"server"`
	Webhook WebhookConfig `yaml:"webhook"`
	Repo    RepoConfig    `yaml:"repo"`
	Sync    SyncConfig    `yaml:"sync"`
	History HistoryConfig `yaml:"history,omitempty"`

	// SourcePath is the absolute path of the file this config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen      string `yaml:"listen"`
	WebhookPath string `yaml:"webhook_path"`

	// MaxBodySize accepts plain bytes or a KB/MB/GB suffix (e.g. "25MB").
	MaxBodySize string `yaml:"max_body_size,omitempty"`

	// MaxBodyBytes is MaxBodySize resolved during Load.
	MaxBodyBytes int64 `yaml:"-"`
}

// WebhookConfig holds the shared secret configured on the GitHub webhook.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// RepoConfig points at the local clone kept in sync.
type RepoConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig controls how the pull is executed.
type SyncConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	GitBinary string        `yaml:"git_binary"`
	Remote    string        `yaml:"remote"`
}

// HistoryConfig enables the optional delivery log. Empty Path disables it.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// SecretIsPlaceholder reports whether the webhook secret was left unset or at
// its example value. Verification against such a secret never succeeds.
func (c *Config) SecretIsPlaceholder() bool {
	return c.Webhook.Secret == "" || c.Webhook.Secret == PlaceholderSecret
}

// RepoPathIsPlaceholder reports whether repo.path still holds the example value.
func (c *Config) RepoPathIsPlaceholder() bool {
	return c.Repo.Path == PlaceholderRepoPath
}

// HistoryEnabled reports whether deliveries should be recorded.
func (c *Config) HistoryEnabled() bool {
	return c.History.Path != ""
}

// Defaults returns a Config with the values used when a field is not set.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "hookpull",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:       "0.0.0.0:5000",
			WebhookPath:  "/webhook",
			MaxBodySize:  "25MB",
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Webhook: WebhookConfig{
			Secret: PlaceholderSecret,
		},
		Repo: RepoConfig{
			Path: PlaceholderRepoPath,
		},
		Sync: SyncConfig{
			Timeout:   DefaultSyncTimeout,
			GitBinary: "git",
			Remote:    "origin",
		},
	}
}

// Default values
const (
	DefaultMaxBodyBytes = 25 * 1024 * 1024
	DefaultSyncTimeout  = 30 * time.Second
)
