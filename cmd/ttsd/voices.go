package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/synth"
)

func newVoicesCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the configured engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.runtime(cmd)
			if err != nil {
				return err
			}
			engine, err := synth.New(synth.Options{
				Engine:      cfg.Engine,
				EspeakPath:  cfg.EspeakPath,
				KokoroURL:   cfg.KokoroURL,
				KokoroModel: cfg.KokoroModel,
				HTTPTimeout: cfg.HTTPTimeout,
			})
			if err != nil {
				return err
			}

			voices, err := engine.Voices(cmd.Context())
			if err != nil {
				return fmt.Errorf("list voices: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tLANGUAGE")
			for _, v := range voices {
				fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, v.Name, v.Language)
			}
			return w.Flush()
		},
	}
}
