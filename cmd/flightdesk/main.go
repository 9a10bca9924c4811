package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flightdesk/internal/infra/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "flightdesk.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &rootOptions{}
	run := &runOptions{}

	cmd := &cobra.Command{
		Use:   "flightdesk",
		Short: "Multi-agent flight booking over MCP tools",
		Long: `flightdesk runs a group conversation between a triage agent, a booking
agent and a seat selection agent. The booking and seat agents call tools
hosted by an MCP provider reached over WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConversation(cmd.Context(), root, run, out)
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&root.configPath, "config", "",
		"config file (default $FLIGHTDESK_CONFIG or ./"+defaultConfigPath+")")
	addRunFlags(cmd, run)

	cmd.AddCommand(
		newRunCmd(root, out),
		newServeToolsCmd(root, out),
		newVersionCmd(out),
	)
	return cmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(out, "flightdesk %s\n", version)
		},
	}
}

// loadConfig resolves the config path and loads it. A missing file yields
// defaults with env overrides.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
