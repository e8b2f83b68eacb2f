package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/deskpilot"
	"pkt.systems/deskpilot/core"
	"pkt.systems/deskpilot/httpapi"
	"pkt.systems/deskpilot/internal/agenthttp"
	"pkt.systems/deskpilot/internal/appconfig"
	"pkt.systems/deskpilot/internal/eventbus"
	"pkt.systems/deskpilot/internal/persist"
	"pkt.systems/deskpilot/schema"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the deskpilot control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			endpoint, err := agenthttp.NewClient(agenthttp.Config{
				BaseURL:        cfg.Endpoint.BaseURL,
				APIKey:         cfg.Endpoint.APIKey,
				Timeout:        time.Duration(cfg.Endpoint.TimeoutSeconds) * time.Second,
				CommandTimeout: time.Duration(cfg.Endpoint.CommandTimeoutSeconds) * time.Second,
			}, logger)
			if err != nil {
				return err
			}
			store, err := persist.NewStoreWithLogger(filepath.Join(cfg.StateDir, "session"), logger)
			if err != nil {
				return err
			}

			serverCfg := deskpilot.ServerConfig{
				Service: schema.ServiceConfig{
					DefaultInstanceKind: schema.InstanceKind(cfg.Session.InstanceKind),
					DefaultTimeoutHours: cfg.Session.TimeoutHours,
					DefaultTools:        toToolKinds(cfg.Session.Tools),
					HistoryCapacity:     cfg.Session.HistoryCapacity,
					PollInterval:        time.Duration(cfg.Poll.IntervalSeconds) * time.Second,
					PollFailureInterval: time.Duration(cfg.Poll.FailureIntervalSeconds) * time.Second,
					PauseBlocksDispatch: cfg.Session.PauseBlocksDispatch,
					StateDir:            cfg.StateDir,
				},
				HTTP: httpapi.Config{
					Addr:     cfg.HTTP.Addr,
					BasePath: cfg.HTTP.BasePath,
					APIToken: cfg.HTTP.APIToken,
				},
			}
			serverDeps := deskpilot.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Endpoint: endpoint,
					Store:    store,
					Logger:   logger,
				},
				Events: eventbus.New(logger),
			}
			server, err := deskpilot.New(serverCfg, serverDeps, deskpilot.WithHTTP(), deskpilot.WithPoller())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("control server listening", "addr", serverCfg.HTTP.Addr, "endpoint", cfg.Endpoint.BaseURL)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func toToolKinds(values []string) []schema.ToolKind {
	if len(values) == 0 {
		return nil
	}
	out := make([]schema.ToolKind, 0, len(values))
	for _, value := range values {
		out = append(out, schema.ToolKind(value))
	}
	return out
}
