package main

import (
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/deskpilot/httpapi"
	"pkt.systems/deskpilot/internal/agentmock"
	"pkt.systems/pslog"
)

func newAgentMockCmd() *cobra.Command {
	var addr string
	var scenario string
	var delayMs int
	var flakyEvery int
	var liveBrowser bool
	cmd := &cobra.Command{
		Use:   "agent-mock",
		Short: "Run a mock agent endpoint for development and testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			server, err := agentmock.NewServer(agentmock.Config{
				Scenario:    scenario,
				Delay:       time.Duration(delayMs) * time.Millisecond,
				FlakyEvery:  flakyEvery,
				LiveBrowser: liveBrowser,
			}, logger)
			if err != nil {
				return err
			}
			defer server.Close()
			logger.Info("mock endpoint listening", "addr", addr, "scenario", scenario, "live_browser", liveBrowser)
			return httpapi.ListenAndServe(cmd.Context(), addr, server.Handler())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":27520", "listen address")
	cmd.Flags().StringVar(&scenario, "scenario", "", "forced scenario: echo, failure, flaky, slow")
	cmd.Flags().IntVar(&delayMs, "delay-ms", 0, "delay before answering commands")
	cmd.Flags().IntVar(&flakyEvery, "flaky-every", 3, "fail every Nth status check in the flaky scenario")
	cmd.Flags().BoolVar(&liveBrowser, "live-browser", false, "drive a headless Chrome for browse prompts and screenshots")
	return cmd
}
