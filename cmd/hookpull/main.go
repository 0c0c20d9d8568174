// Command hookpull runs a GitHub webhook receiver that keeps a local clone up to date.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/hookpull/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func runCLI(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "hookpull",
		Short:         "Pull a local git clone when GitHub reports a push",
		Long:          "hookpull receives GitHub webhook deliveries, verifies their HMAC-SHA256 signature and runs git pull for the pushed branch.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		fmt.Sprintf("Path to %s or its directory (default: $%s, ./%s, ~/.config/hookpull, /etc/hookpull)",
			config.DefaultFileName, config.EnvConfigPath, config.DefaultFileName))

	cmd.AddCommand(
		newServeCmd(opts),
		newConfigCmd(opts),
		newSignCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// loadConfig loads the file named by --config, or the discovered one.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, err
		}
		path = discovered
		fmt.Fprintf(cmd.ErrOrStderr(), "Using discovered config: %s\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
