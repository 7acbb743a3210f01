package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/whisperlive-lab/internal/readiness"
)

func newReadyCmd(root *rootOptions) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "Check whether the WhisperLive endpoint accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			out := cmd.OutOrStdout()
			if wait <= 0 {
				st := readiness.Probe(cmd.Context(), cfg.Endpoint)
				if !st.Ready {
					fmt.Fprintf(out, "not ready: %s (%s)\n", st.Address, st.Error)
					return &exitError{code: 1}
				}
				fmt.Fprintf(out, "ready: %s (%v)\n", st.Address, st.Latency.Round(time.Millisecond))
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			st, err := readiness.WaitReady(ctx, cfg.Endpoint, cfg.Readiness.Interval, nil)
			if err != nil {
				fmt.Fprintf(out, "not ready: %s (%s)\n", st.Address, st.Error)
				return &exitError{code: 1, err: err}
			}
			fmt.Fprintf(out, "ready: %s\n", st.Address)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep probing for up to this long")
	return cmd
}
