package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/config"
)

func newSettingsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved synthesis defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newSettingsShowCommand(flags),
		newSettingsSetCommand(flags),
	)
	return cmd
}

func newSettingsShowCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.runtime(cmd)
			if err != nil {
				return err
			}
			settings, err := config.NewStore(cfg.SettingsPath).Load()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}

			out, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newSettingsSetCommand(flags *globalFlags) *cobra.Command {
	var (
		voice     string
		rate      int
		volume    float64
		chunkSize int
		pauseMs   int
	)

	cmd := &cobra.Command{
		Use:     "set",
		Short:   "Change one or more settings",
		Example: `  ttsd settings set --voice en-us --rate 180`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.runtime(cmd)
			if err != nil {
				return err
			}
			store := config.NewStore(cfg.SettingsPath)
			settings, err := store.Load()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}

			changed := cmd.Flags().Changed
			if changed("voice") {
				settings.VoiceID = voice
			}
			if changed("rate") {
				settings.Rate = rate
			}
			if changed("volume") {
				settings.Volume = volume
			}
			if changed("chunk-size") {
				settings.ChunkSize = chunkSize
			}
			if changed("pause") {
				settings.PauseMs = pauseMs
			}

			if err := store.Save(settings); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", cfg.SettingsPath)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&voice, "voice", "", "Default voice id")
	f.IntVar(&rate, "rate", 0, "Default rate in words per minute")
	f.Float64Var(&volume, "volume", 0, "Default volume between 0 and 1")
	f.IntVar(&chunkSize, "chunk-size", 0, "Characters per synthesis chunk")
	f.IntVar(&pauseMs, "pause", 0, "Silence between chunks in milliseconds")
	cmd.MarkFlagsOneRequired("voice", "rate", "volume", "chunk-size", "pause")
	return cmd
}
