package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/whisperlive-lab/internal/audio"
	"github.com/whisperlive-lab/internal/config"
	"github.com/whisperlive-lab/internal/logging"
	"github.com/whisperlive-lab/internal/readiness"
	"github.com/whisperlive-lab/internal/sidecar"
	"github.com/whisperlive-lab/internal/stream"
)

type streamOptions struct {
	file      string
	silence   time.Duration
	language  string
	task      string
	model     string
	noVAD     bool
	outputDir string
	srt       bool
	waitReady bool
	jsonOut   bool
}

func newStreamCmd(root *rootOptions) *cobra.Command {
	o := &streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream one audio file (or generated silence) and print the transcript",
		Long: `Connects to the WhisperLive endpoint, sends the session configuration, uploads
the audio at a paced rate while collecting transcript segments, and prints the
result. Exit status is 0 when a transcript was produced, 2 when the session
completed without one, and 1 on failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			o.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return &exitError{code: 1, err: err}
			}
			return o.run(cmd, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.file, "file", "f", "", "audio file: .wav or raw float32 LE 16 kHz mono")
	f.DurationVar(&o.silence, "silence", 0, "stream this much generated silence instead of a file")
	f.StringVar(&o.language, "language", "", "language code, or auto")
	f.StringVar(&o.task, "task", "", "transcribe or translate")
	f.StringVar(&o.model, "model", "", "model name")
	f.BoolVar(&o.noVAD, "no-vad", false, "disable server-side voice activity detection")
	f.StringVar(&o.outputDir, "output-dir", "", "write transcript JSON into this directory")
	f.BoolVar(&o.srt, "srt", false, "also write an SRT file next to the transcript JSON")
	f.BoolVar(&o.waitReady, "wait-ready", false, "wait for the endpoint to accept connections first")
	f.BoolVar(&o.jsonOut, "json", false, "print the full summary as JSON")
	return cmd
}

// apply overlays explicitly set flags onto cfg.
func (o *streamOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("language") {
		cfg.Session.Language = o.language
	}
	if f.Changed("task") {
		cfg.Session.Task = o.task
	}
	if f.Changed("model") {
		cfg.Session.Model = o.model
	}
	if f.Changed("no-vad") {
		v := !o.noVAD
		cfg.Session.UseVAD = &v
	}
	if f.Changed("output-dir") {
		cfg.Output.Dir = o.outputDir
	}
	if f.Changed("srt") {
		cfg.Output.SRT = o.srt
	}
	if f.Changed("wait-ready") {
		cfg.Readiness.Wait = o.waitReady
	}
}

func (o *streamOptions) loadAudio() ([]byte, error) {
	switch {
	case o.file != "" && o.silence > 0:
		return nil, errors.New("use either --file or --silence, not both")
	case o.file != "":
		return audio.LoadFile(o.file)
	case o.silence > 0:
		return audio.Silence(o.silence), nil
	default:
		return nil, errors.New("one of --file or --silence is required")
	}
}

func (o *streamOptions) run(cmd *cobra.Command, cfg config.Config) error {
	buf, err := o.loadAudio()
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Readiness.Wait {
		wctx, cancel := context.WithTimeout(ctx, cfg.Readiness.Timeout)
		_, err := readiness.WaitReady(wctx, cfg.Endpoint, cfg.Readiness.Interval, nil)
		cancel()
		if err != nil {
			return &exitError{code: 1, err: err}
		}
	}

	sessCfg := stream.NewSessionConfig("", cfg.Session.Language, stream.Task(cfg.Session.Task), cfg.Session.Model, cfg.Session.UseVADValue())
	client := &stream.Client{Endpoint: cfg.Endpoint, Options: stream.NewOptions(cfg.Stream)}
	summary := stream.Summarize(client.Transcribe(ctx, sessCfg, buf))
	summary.Log(ctx)

	if path, err := sidecar.NewManager(cfg.Output.Dir, cfg.Output.SRT).Write(sidecar.FromSummary(summary)); err != nil {
		logging.Warnw("transcript file not written", "err", err)
	} else if path != "" {
		logging.Infow("transcript file written", "path", path)
	}

	out := cmd.OutOrStdout()
	if o.jsonOut {
		b, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return &exitError{code: 1, err: err}
		}
		fmt.Fprintln(out, string(b))
	} else if summary.Text != "" {
		fmt.Fprintln(out, summary.Text)
	}

	if code := summary.Outcome.ExitCode(); code != 0 {
		var cause error
		if summary.Outcome == stream.OutcomeFailed && summary.Error != "" {
			cause = errors.New(summary.Error)
		}
		return &exitError{code: code, err: cause}
	}
	return nil
}
