// ABOUTME: serve and health commands for polydev-mcp
// ABOUTME: Prints the startup banner, builds the gateway, and blocks until shutdown

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/polydev-ai/polydev-mcp/internal/gateway"
)

const banner = `
             _           _
 _ __   ___ | |_   _  __| | _____   __     _ __ ___   ___ _ __
| '_ \ / _ \| | | | |/ _' |/ _ \ \ / /____| '_ ' _ \ / __| '_ \
| |_) | (_) | | |_| | (_| |  __/\ V /_____| | | | | | (__| |_) |
| .__/ \___/|_|\__, |\__,_|\___| \_/      |_| |_| |_|\___| .__/
|_|            |___/                                     |_|
`

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), load)
		},
	}
}

func runServe(ctx context.Context, load configLoader) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := load()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Issuer:    %s\n", cfg.Server.PublicURL)
	green.Print("    ▶ ")
	fmt.Printf("Providers: ")
	if len(cfg.Providers) == 0 {
		yellow.Print("none configured")
	} else {
		names := make([]string, len(cfg.Providers))
		for i, p := range cfg.Providers {
			names[i] = p.Name
		}
		cyan.Print(strings.Join(names, ", "))
	}
	fmt.Println()
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Limit:     %.2f req/s, burst %d\n", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	fmt.Println()

	logger.Info("starting polydev-mcp",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"providers", len(cfg.Providers),
	)

	gateway.Version = version
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func newHealthCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			return checkHealth(cmd.Context(), http.DefaultClient, "http://"+cfg.Server.HTTPAddr, cmd.OutOrStdout())
		},
	}
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health/ready", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Fprintln(out, strings.TrimSpace(string(body)))
	return nil
}
