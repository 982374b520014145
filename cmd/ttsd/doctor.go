package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/service"
)

func newDoctorCommand(flags *globalFlags) *cobra.Command {
	var fix string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the speech engine and the writable directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.runtime(cmd)
			if err != nil {
				return err
			}
			cfg.HistoryDB = "off"
			svc, err := service.New(cfg, service.Options{})
			if err != nil {
				return err
			}
			defer svc.Close(cmd.Context())

			report := svc.Diagnostics(cmd.Context())
			if fix != "" {
				report, err = svc.FixDiagnostic(cmd.Context(), fix)
				if err != nil {
					return fmt.Errorf("fix %s: %w", fix, err)
				}
			}

			printReport(cmd.OutOrStdout(), report)
			if report.HasFailures {
				return fmt.Errorf("some checks failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fix, "fix", "", "Try to remediate the check with this id first")
	return cmd
}

func printReport(w io.Writer, report domain.DiagnosticReport) {
	for _, item := range report.Items {
		mark := "ok  "
		if item.Status == domain.DiagnosticStatusFail {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %-14s %s\n", mark, item.ID, item.Message)
		if item.Hint != "" && item.Status == domain.DiagnosticStatusFail {
			fmt.Fprintf(w, "       hint: %s\n", item.Hint)
		}
	}
}
