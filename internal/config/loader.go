package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by the loader.
const (
	EnvConfigPath = "HOOKPULL_CONFIG"
	EnvSecret     = "HOOKPULL_SECRET"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "hookpull.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates the configuration at configPath.
// If a .checksums manifest sits next to the file, the file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFileName)
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but %s not found: %s", DefaultFileName, absPath)
		}
	}

	if err := VerifyChecksums(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	if secret, ok := os.LookupEnv(EnvSecret); ok && secret != "" {
		cfg.Webhook.Secret = secret
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	maxBody, err := ParseByteSize(cfg.Server.MaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: server.max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}
	cfg.Server.MaxBodyBytes = maxBody

	return cfg, nil
}

// Discover finds the config file to use when no --config flag was given.
// Priority: $HOOKPULL_CONFIG, ./hookpull.yaml, ~/.config/hookpull/hookpull.yaml, /etc/hookpull/hookpull.yaml.
func Discover() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	candidates := []string{DefaultFileName}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "hookpull", DefaultFileName))
	}
	candidates = append(candidates, filepath.Join("/etc", "hookpull", DefaultFileName))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	return "", fmt.Errorf("no config found (checked: $%s, ./%s, ~/.config/hookpull, /etc/hookpull)", EnvConfigPath, DefaultFileName)
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = defaults.Server.WebhookPath
	}
	if cfg.Server.MaxBodySize == "" {
		cfg.Server.MaxBodySize = defaults.Server.MaxBodySize
	}

	if cfg.Webhook.Secret == "" {
		cfg.Webhook.Secret = defaults.Webhook.Secret
	}
	if cfg.Repo.Path == "" {
		cfg.Repo.Path = defaults.Repo.Path
	}

	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = defaults.Sync.Timeout
	}
	if cfg.Sync.GitBinary == "" {
		cfg.Sync.GitBinary = defaults.Sync.GitBinary
	}
	if cfg.Sync.Remote == "" {
		cfg.Sync.Remote = defaults.Sync.Remote
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with the value of VAR. Unset variables are
// left in place so validate can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		return fmt.Errorf("server.webhook_path must start with / (got %q)", cfg.Server.WebhookPath)
	}
	if cfg.Server.WebhookPath == "/" || cfg.Server.WebhookPath == "/healthz" {
		return fmt.Errorf("server.webhook_path %q collides with a built-in route", cfg.Server.WebhookPath)
	}

	if err := checkUnresolved("webhook.secret", cfg.Webhook.Secret); err != nil {
		return err
	}
	if err := checkUnresolved("repo.path", cfg.Repo.Path); err != nil {
		return err
	}
	if err := checkUnresolved("history.path", cfg.History.Path); err != nil {
		return err
	}

	if cfg.Sync.Timeout < 0 {
		return fmt.Errorf("sync.timeout must not be negative")
	}
	if strings.ContainsAny(cfg.Sync.Remote, " \t\n") || strings.HasPrefix(cfg.Sync.Remote, "-") {
		return fmt.Errorf("sync.remote %q is not a valid remote name", cfg.Sync.Remote)
	}

	return nil
}

// checkUnresolved rejects values that still contain a ${VAR} reference,
// which means the variable was not set in the environment.
func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// ParseByteSize parses size strings like "1MB", "512KB" or "2048576" to bytes.
func ParseByteSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodyBytes, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}

	return result, nil
}
