// Package config handles configuration loading for polydev-mcp.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// environment variable expansion. Empty fields receive defaults before
// validation runs.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from POLYDEV_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/polydev/mcp.yaml
//  3. ~/.config/polydev/mcp.yaml
//
// # Environment Variable Expansion
//
// Provider keys should come from the environment:
//
//	providers:
//	  - name: openai
//	    api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  public_url: "https://www.polydev.ai"  # OAuth discovery issuer
//
//	database:
//	  path: "/var/lib/polydev/mcp.db"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
//	rate_limit:
//	  requests_per_second: 5   # per client IP, 0 disables
//	  burst: 10
//
//	perspectives:
//	  provider_timeout: "30s"
//	  max_concurrency: 0        # 0 = one goroutine per model
//	  preference_cache_ttl: "1m"
//	  default_models: ["gpt-5-2025-08-07"]
//
// # Usage
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
