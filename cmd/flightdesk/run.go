package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"flightdesk/internal/adapter/console"
	"flightdesk/internal/infra/config"
	"flightdesk/internal/infra/logger"
	"flightdesk/internal/infra/tracer"
	"flightdesk/internal/usecase/eventbus"
	"flightdesk/internal/usecase/travel"
)

type runOptions struct {
	message  string
	mcpURL   string
	markdown bool
	quiet    bool
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.message, "message", "", "opening request (default groupchat.seed_message)")
	f.StringVar(&opts.mcpURL, "mcp-url", "", "tool provider WebSocket URL (default mcp.url)")
	f.BoolVar(&opts.markdown, "markdown", false, "render agent messages as markdown")
	f.BoolVar(&opts.quiet, "quiet", false, "print only the final transcript")
}

func newRunCmd(root *rootOptions, out io.Writer) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the flight booking conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConversation(cmd.Context(), root, opts, out)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func runConversation(ctx context.Context, root *rootOptions, opts *runOptions, out io.Writer) error {
	// 1. Config
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return err
	}
	if opts.mcpURL != "" {
		cfg.MCP.URL = opts.mcpURL
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. LLM providers
	llms, err := initLLM(cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 4. Event bus
	bus := eventbus.New(log)
	defer bus.Close()
	defer eventbus.LogEvents(bus, log)()

	printer := console.NewPrinter(out, console.WithMarkdown(opts.markdown))
	if !opts.quiet {
		defer printer.Watch(bus)()
	}

	// 5. Conversation
	wf := travel.NewWorkflow(cfg, llms,
		travel.WithLogger(log),
		travel.WithEventBus(bus),
	)
	res, err := wf.Run(ctx, opts.message)
	// Drain live output before the transcript.
	bus.Close()
	printer.PrintResult(res)
	return err
}
