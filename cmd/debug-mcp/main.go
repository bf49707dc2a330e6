// debug-mcp: debugging aggregator MCP server
//
// One MCP server in front of CloudWatch Logs, Step Functions, LangSmith and
// Jira, reached through a single "debug" meta tool.
//
// Usage:
//
//	debug-mcp serve     # Start MCP server (stdio transport by default)
//	debug-mcp tools     # Print the tools the current configuration enables
//	debug-mcp version   # Print the version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Coykto/debug-mcp/internal/config"
	"github.com/Coykto/debug-mcp/internal/logging"
	dbgserver "github.com/Coykto/debug-mcp/internal/server"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	rootCmd := &cobra.Command{
		Use:           "debug-mcp",
		Short:         "Debugging aggregator MCP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.debug-mcp/debug-mcp.yaml)")
	flags.String("aws-region", "", "AWS region; AWS tools stay hidden until one is set (clients fall back to "+config.DefaultRegion+")")
	flags.String("aws-profile", "", "AWS shared config profile")
	flags.String("tools", "", `tools to expose: empty for the AWS defaults, "all", or a comma list`)
	flags.String("expose", config.ExposeMeta, "tool exposure: meta (single debug tool) or direct (also every tool)")
	flags.String("transport", config.TransportStdio, "transport: stdio or http")
	flags.String("http-addr", ":8080", "listen address for the http transport")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "log file (default stderr)")

	for key, flag := range map[string]string{
		"aws.region":  "aws-region",
		"aws.profile": "aws-profile",
		"tools":       "tools",
		"expose":      "expose",
		"transport":   "transport",
		"http.addr":   "http-addr",
		"log.level":   "log-level",
		"log.file":    "log-file",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(serveCmd, newToolsCmd(v), &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "debug-mcp v%s\n", dbgserver.Version)
		},
	})
	return rootCmd
}

func newToolsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools enabled by the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			app, err := dbgserver.Build(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer app.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tTOOL")
			for _, info := range app.Registry.List("") {
				fmt.Fprintf(w, "%s\t%s\n", info.Category, info.Name)
			}
			return w.Flush()
		},
	}
}

func runServe(parent context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	app, err := dbgserver.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer app.Close()

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("starting debug-mcp",
		zap.String("version", dbgserver.Version),
		zap.String("transport", cfg.Transport),
		zap.String("region", cfg.Region()),
	)

	if cfg.Transport == config.TransportHTTP {
		return dbgserver.ServeHTTP(ctx, app, cfg.HTTP.Addr)
	}
	return server.ServeStdio(app.MCP)
}
