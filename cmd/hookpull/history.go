package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/hookpull/internal/history"
	"github.com/mattjoyce/hookpull/internal/storage"
)

func newHistoryCmd(global *globalOptions) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deliveries",
		Long:  "History prints the most recent deliveries recorded in history.path, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			if !cfg.HistoryEnabled() {
				return errors.New("delivery history is disabled; set history.path in the config")
			}

			db, err := storage.OpenSQLite(cmd.Context(), cfg.History.Path)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			deliveries, err := history.New(db).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOut {
				data, err := json.MarshalIndent(deliveries, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to render history JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			if len(deliveries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deliveries recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RECEIVED\tDELIVERY\tEVENT\tBRANCH\tSTATUS\tOUTCOME\tEXIT\tDURATION\tMESSAGE")
			for _, d := range deliveries {
				exit := "-"
				if d.ExitCode != nil {
					exit = strconv.Itoa(*d.ExitCode)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					d.ReceivedAt.Local().Format(time.DateTime),
					d.DeliveryID,
					d.Event,
					dash(d.Branch),
					d.Status,
					d.Outcome,
					exit,
					d.Duration.Round(time.Millisecond),
					d.Message,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of deliveries to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
