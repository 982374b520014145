package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/service"
)

type convertOptions struct {
	text    string
	file    string
	url     string
	output  string
	voice   string
	rate    int
	volume  float64
	timeout time.Duration
}

func newConvertCommand(flags *globalFlags) *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:     "convert",
		Aliases: []string{"c"},
		Short:   "Convert text, a document or a web page to an audio file",
		Example: `  ttsd convert --text "Hello world" -o hello.wav
  ttsd convert --file report.pdf -o report.wav
  ttsd convert --url https://example.com/article -o article.wav`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.runtime(cmd)
			if err != nil {
				return err
			}
			svc, err := service.New(cfg, service.Options{})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			svc.Start(ctx)
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = svc.Close(closeCtx)
			}()

			return runConvert(ctx, cmd, svc, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.text, "text", "", "Text to speak")
	f.StringVar(&opts.file, "file", "", "Document to read (.txt, .pdf, .docx, .pptx)")
	f.StringVar(&opts.url, "url", "", "Web page to read")
	f.StringVarP(&opts.output, "output", "o", "speech.wav", "Output audio file")
	f.StringVar(&opts.voice, "voice", "", "Voice id (defaults to saved settings)")
	f.IntVar(&opts.rate, "rate", 0, "Speech rate in words per minute (defaults to saved settings)")
	f.Float64Var(&opts.volume, "volume", 0, "Volume between 0 and 1 (defaults to saved settings)")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Minute, "Give up after this long")
	cmd.MarkFlagsOneRequired("text", "file", "url")
	cmd.MarkFlagsMutuallyExclusive("text", "file", "url")

	return cmd
}

func runConvert(ctx context.Context, cmd *cobra.Command, svc *service.Service, opts *convertOptions) error {
	text := opts.text
	var err error
	switch {
	case opts.file != "":
		text, err = svc.ExtractFile(ctx, opts.file)
	case opts.url != "":
		text, err = svc.ExtractURL(ctx, opts.url)
	}
	if err != nil {
		return err
	}

	req := service.SpeakRequest{Text: text}
	flags := cmd.Flags()
	if flags.Changed("voice") {
		req.VoiceID = &opts.voice
	}
	if flags.Changed("rate") {
		req.Rate = &opts.rate
	}
	if flags.Changed("volume") {
		req.Volume = &opts.volume
	}

	id, err := svc.Speak(ctx, req)
	if err != nil {
		return err
	}

	st, err := svc.Wait(ctx, id)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		_ = svc.Cancel(id)
		return fmt.Errorf("conversion did not finish: %w", err)
	}
	if err != nil {
		return err
	}
	if st.State != domain.TaskStateCompleted {
		return fmt.Errorf("conversion %s: %s", st.State, st.Error)
	}

	if err := svc.ExportArtifact(id, opts.output); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d characters)\n", opts.output, len([]rune(text)))
	return nil
}
