package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/httpapi"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/service"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Run the HTTP API and the conversion workers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.runtime(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}

			svc, err := service.New(cfg, service.Options{})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc.Start(context.Background())
			server := httpapi.NewServer(svc)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe(cfg.Addr)
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				logger.InfoC("serve", "Shutting down")
			case serveErr = <-errCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return errors.Join(
				serveErr,
				server.Shutdown(shutdownCtx),
				svc.Close(shutdownCtx),
			)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (TTS_ADDR)")
	return cmd
}
