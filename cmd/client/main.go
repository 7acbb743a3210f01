package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/whisperlive-lab/internal/config"
	"github.com/whisperlive-lab/internal/logging"
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

type rootOptions struct {
	configPath string
	endpoint   string
	logLevel   string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "whisperlive-client",
		Short:         "Stream audio to a WhisperLive server and collect the transcript",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "WhisperLive websocket endpoint (overrides config)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug|info|warn|error")

	root.AddCommand(newStreamCmd(opts), newReadyCmd(opts), newMCPCmd(opts))
	return root
}

// load reads configuration and applies the persistent flag overrides, then
// initialises logging at the resulting level.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.endpoint != "" {
		cfg.Endpoint = o.endpoint
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logging.InitLevel(cfg.LogLevel)
	return cfg, nil
}

func execute(args []string, out io.Writer) int {
	root := newRootCmd(out)
	root.SetArgs(args)
	err := root.Execute()
	_ = logging.Sync()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return 1
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}
