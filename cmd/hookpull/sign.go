package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/hookpull/internal/config"
	"github.com/mattjoyce/hookpull/internal/webhook"
)

func newSignCmd(global *globalOptions) *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "sign [payload-file]",
		Short: "Compute the X-Hub-Signature-256 header for a payload",
		Long: "Sign prints the signature GitHub would send for the payload read from the file or stdin. " +
			"The secret comes from --secret, $" + config.EnvSecret + ", or the config file, in that order.",
		Example: `  hookpull sign push.json
  curl -H "X-GitHub-Event: push" -H "X-Hub-Signature-256: $(hookpull sign push.json)" --data-binary @push.json http://localhost:5000/webhook`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := signingSecret(cmd, global, secret)
			if err != nil {
				return err
			}

			var body []byte
			if len(args) == 1 && args[0] != "-" {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), webhook.SignPayload(body, key))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Secret to sign with")

	return cmd
}

func signingSecret(cmd *cobra.Command, global *globalOptions, flagSecret string) (string, error) {
	if flagSecret != "" {
		return flagSecret, nil
	}
	if env := os.Getenv(config.EnvSecret); env != "" {
		return env, nil
	}

	cfg, err := loadConfig(cmd, global)
	if err != nil {
		return "", err
	}
	if cfg.SecretIsPlaceholder() {
		return "", errors.New("no secret configured; pass --secret or set $" + config.EnvSecret)
	}
	return cfg.Webhook.Secret, nil
}
