package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/whisperlive-lab/internal/mcp"
)

const defaultMCPURL = "ws://localhost:9001/mcp/ws"

func newMCPCmd(root *rootOptions) *cobra.Command {
	var (
		url     string
		rawArgs string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mcp <tool>",
		Short: "Call a tool on a running mcp-server and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.load(); err != nil {
				return &exitError{code: 1, err: err}
			}
			toolArgs := map[string]any{}
			if s := strings.TrimSpace(rawArgs); s != "" {
				if err := json.Unmarshal([]byte(s), &toolArgs); err != nil {
					return &exitError{code: 1, err: fmt.Errorf("--args must be a JSON object: %w", err)}
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			client := mcp.NewClientWrapper("whisperlive-client", "cli")
			if err := client.ConnectWebSocket(ctx, url); err != nil {
				return &exitError{code: 1, err: err}
			}
			defer client.Close()

			text, err := client.CallText(ctx, args[0], toolArgs)
			if text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&url, "url", defaultMCPURL, "mcp-server websocket URL")
	f.StringVar(&rawArgs, "args", "", `tool arguments as a JSON object, e.g. '{"silence_seconds": 2}'`)
	f.DurationVar(&timeout, "timeout", 5*time.Minute, "give up on the call after this long")
	return cmd
}
