package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/history"
)

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent finished conversions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.runtime(cmd)
			if err != nil {
				return err
			}
			if !cfg.HistoryEnabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "History is disabled.")
				return nil
			}

			journal, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer journal.Close()

			outcomes, err := journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tSTATE\tCHUNKS\tBYTES\tFINISHED\tERROR")
			for _, o := range outcomes {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					o.TaskID, o.State, o.Chunks, o.Bytes, o.FinishedAt.Local().Format(time.DateTime), o.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	return cmd
}
