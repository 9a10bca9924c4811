package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"flightdesk/internal/adapter/mcpserver"
	"flightdesk/internal/infra/config"
	"flightdesk/internal/infra/logger"
)

func newServeToolsCmd(root *rootOptions, out io.Writer) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-tools",
		Short: "Run the demo travel tool provider (MCP over WebSocket)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ToolServer.Addr = addr
			}
			log, logCloser, err := logger.New(cfg.Logger)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer logCloser()
			return serveTools(cmd.Context(), cfg.ToolServer, log, out)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default tool_server.addr)")
	return cmd
}

// serveTools runs the demo provider until ctx is cancelled.
func serveTools(ctx context.Context, cfg config.ToolServerConfig, log *slog.Logger, out io.Writer) error {
	store := mcpserver.NewBookingStore()
	srv := mcpserver.NewServer(mcpserver.NewTravelServer(store, log), cfg, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
		path := cfg.Path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(out, "travel tools listening on ws://%s%s\n", srv.BoundAddr(), path)
	case err := <-errCh:
		return err
	}
	return <-errCh
}
