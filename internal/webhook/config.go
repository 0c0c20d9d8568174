package webhook

import (
	"fmt"

	"github.com/mattjoyce/hookpull/internal/config"
)

// FromGlobalConfig converts the loaded service config to webhook.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	return Config{
		Listen:              cfg.Server.Listen,
		Path:                cfg.Server.WebhookPath,
		Secret:              cfg.Webhook.Secret,
		SecretIsPlaceholder: cfg.SecretIsPlaceholder(),
		MaxBodySize:         cfg.Server.MaxBodyBytes,
		SyncTimeout:         cfg.Sync.Timeout,
	}, nil
}
