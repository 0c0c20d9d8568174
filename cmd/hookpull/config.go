package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hookpull/internal/config"
	"github.com/mattjoyce/hookpull/internal/doctor"
)

var errConfigInvalid = errors.New("configuration invalid")

const redacted = "********"

func newConfigCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the configuration",
	}

	cmd.AddCommand(
		newConfigCheckCmd(global),
		newConfigLockCmd(global),
		newConfigShowCmd(global),
	)

	return cmd
}

func newConfigCheckCmd(global *globalOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration against this host",
		Long:  "Check loads the configuration and reports problems that would make deliveries fail: a missing repository, no git on PATH, a placeholder secret.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}

			result := doctor.New(cfg).Validate()
			if jsonOut {
				out, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			} else {
				fmt.Fprint(cmd.OutOrStdout(), doctor.FormatHuman(result))
			}

			if !result.Valid {
				return errConfigInvalid
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the report as JSON")

	return cmd
}

func newConfigLockCmd(global *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Write the " + config.ChecksumFileName + " manifest for the config file",
		Long:  "Lock records a BLAKE3 hash of the config file. While the manifest exists, a config that no longer matches it is refused at load.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := global.configPath
			if path == "" {
				discovered, err := config.Discover()
				if err != nil {
					return err
				}
				path = discovered
			}

			manifest, err := config.WriteChecksums(path, dryRun)
			if err != nil {
				return fmt.Errorf("failed to lock config: %w", err)
			}

			out := cmd.OutOrStdout()
			for name, hash := range manifest.Hashes {
				fmt.Fprintf(out, "%s  %s\n", hash, name)
			}
			if dryRun {
				fmt.Fprintln(out, "Dry run: manifest not written.")
			} else {
				fmt.Fprintf(out, "Wrote %s\n", config.ChecksumFileName)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print hashes without writing the manifest")

	return cmd
}

func newConfigShowCmd(global *globalOptions) *cobra.Command {
	var showSecret bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}

			if !showSecret && !cfg.SecretIsPlaceholder() {
				cfg.Webhook.Secret = redacted
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfg.SourcePath, data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "Print the webhook secret instead of masking it")

	return cmd
}
