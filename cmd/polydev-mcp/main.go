// ABOUTME: Entry point for the polydev-mcp server and its operator commands
// ABOUTME: Builds the cobra command tree and runs it under a signal-aware context

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/polydev-ai/polydev-mcp/internal/config"
	"github.com/polydev-ai/polydev-mcp/internal/gateway"
	"github.com/polydev-ai/polydev-mcp/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "polydev-mcp",
		Short:         "MCP server that fans prompts out to multiple AI models",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+config.ConfigEnvVar+" or ~/.config/polydev/mcp.yaml)")

	loadConfig := func() (*config.Config, string, error) {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("loading config: %w", err)
		}
		return cfg, path, nil
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newHealthCmd(loadConfig),
		newTokenCmd(loadConfig),
		newPrefsCmd(loadConfig),
		newUsageCmd(loadConfig),
	)
	return root
}

// configLoader resolves and loads the config file named by --config.
type configLoader func() (*config.Config, string, error)

// openStore opens the configured database for one-shot operator commands.
func openStore(load configLoader) (store.Store, error) {
	cfg, _, err := load()
	if err != nil {
		return nil, err
	}
	path := cfg.Database.Path
	if envPath := os.Getenv(gateway.DBPathEnvVar); envPath != "" {
		path = envPath
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}
