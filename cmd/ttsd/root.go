package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/config"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
)

// globalFlags override the environment configuration for one invocation.
type globalFlags struct {
	dataDir   string
	settings  string
	history   string
	engine    string
	logLevel  string
	logFormat string
}

func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "ttsd",
		Short:         "Convert documents and text to speech",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.runtime(cmd)
			if err != nil {
				return err
			}
			logger.Configure(os.Stderr, cfg.LogFormat, cfg.LogLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.dataDir, "data-dir", "", "Directory for artifacts and uploads (TTS_DATA_DIR)")
	pf.StringVar(&flags.settings, "settings", "", "Settings file, .json or .yaml (TTS_SETTINGS)")
	pf.StringVar(&flags.history, "history-db", "", `Outcome journal path, "off" disables it (TTS_HISTORY_DB)`)
	pf.StringVar(&flags.engine, "engine", "", "Speech engine: espeak, kokoro or tone (TTS_ENGINE)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (TTS_LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: console or json (TTS_LOG_FORMAT)")

	cmd.AddCommand(
		newServeCommand(flags),
		newConvertCommand(flags),
		newVoicesCommand(flags),
		newSettingsCommand(flags),
		newHistoryCommand(flags),
		newDoctorCommand(flags),
		newVersionCommand(),
	)

	return cmd
}

// runtime loads the environment configuration and applies the flags that
// were set explicitly.
func (f *globalFlags) runtime(cmd *cobra.Command) (config.Runtime, error) {
	cfg, err := config.LoadRuntime()
	if err != nil {
		return config.Runtime{}, err
	}

	changed := cmd.Flags().Changed
	if changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if changed("settings") {
		cfg.SettingsPath = f.settings
	}
	if changed("history-db") {
		cfg.HistoryDB = f.history
	}
	if changed("engine") {
		cfg.Engine = f.engine
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	return cfg, cfg.Validate()
}

// shutdownTimeout bounds how long running tasks get to finish on exit.
const shutdownTimeout = 30 * time.Second
