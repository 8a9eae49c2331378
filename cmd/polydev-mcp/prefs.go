// ABOUTME: prefs subcommands that edit the per-user model preferences get_perspectives falls back to
// ABOUTME: Updates merge into the stored record so unspecified fields are preserved

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polydev-ai/polydev-mcp/internal/store"
)

// prefsUpdate carries only the fields the operator passed.
type prefsUpdate struct {
	providers    []string
	models       map[string]string
	defaultModel *string
	temperature  *float64
	maxTokens    *int
}

func newPrefsCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Manage per-user model preferences",
	}
	cmd.AddCommand(newPrefsSetCmd(load), newPrefsShowCmd(load))
	return cmd
}

func newPrefsSetCmd(load configLoader) *cobra.Command {
	var (
		userID       string
		providers    []string
		models       map[string]string
		defaultModel string
		temperature  float64
		maxTokens    int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or update a user's preferences",
		Example: `  polydev-mcp prefs set --user u1 --providers openai,anthropic \
      --model anthropic=claude-3-5-sonnet-20241022 --temperature 0.3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var u prefsUpdate
			flags := cmd.Flags()
			if flags.Changed("providers") {
				u.providers = providers
			}
			if flags.Changed("model") {
				u.models = models
			}
			if flags.Changed("default-model") {
				u.defaultModel = &defaultModel
			}
			if flags.Changed("temperature") {
				u.temperature = &temperature
			}
			if flags.Changed("max-tokens") {
				u.maxTokens = &maxTokens
			}
			return withStore(load, func(s store.Store) error {
				return setPreferences(cmd.Context(), s, cmd.OutOrStdout(), userID, u)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID (required)")
	cmd.Flags().StringSliceVar(&providers, "providers", nil, "ordered preferred providers")
	cmd.Flags().StringToStringVar(&models, "model", nil, "per-provider model override, provider=model")
	cmd.Flags().StringVar(&defaultModel, "default-model", "", "model used when no provider is preferred")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "default sampling temperature (0-2)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 1000, "default max tokens per response (1-8000)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newPrefsShowCmd(load configLoader) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a user's preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(load, func(s store.Store) error {
				prefs, err := s.GetPreferences(cmd.Context(), userID)
				if errors.Is(err, store.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "No preferences for %s; server defaults apply.\n", userID)
					return nil
				}
				if err != nil {
					return fmt.Errorf("loading preferences: %w", err)
				}
				printPreferences(cmd.OutOrStdout(), prefs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func setPreferences(ctx context.Context, s store.PreferenceStore, out io.Writer, userID string, u prefsUpdate) error {
	if userID == "" {
		return errors.New("user is required")
	}
	if u.temperature != nil && (*u.temperature < 0 || *u.temperature > 2) {
		return fmt.Errorf("temperature %v must be between 0 and 2", *u.temperature)
	}
	if u.maxTokens != nil && (*u.maxTokens < 1 || *u.maxTokens > 8000) {
		return fmt.Errorf("max tokens %d must be between 1 and 8000", *u.maxTokens)
	}

	prefs, err := s.GetPreferences(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		prefs = &store.Preferences{UserID: userID}
	case err != nil:
		return fmt.Errorf("loading preferences: %w", err)
	}

	if u.providers != nil {
		prefs.PreferredProviders = u.providers
	}
	if u.models != nil {
		if prefs.ModelPreferences == nil {
			prefs.ModelPreferences = make(map[string]string, len(u.models))
		}
		for provider, model := range u.models {
			if model == "" {
				delete(prefs.ModelPreferences, provider)
				continue
			}
			prefs.ModelPreferences[provider] = model
		}
	}
	if u.defaultModel != nil {
		prefs.DefaultModel = *u.defaultModel
	}
	if u.temperature != nil {
		prefs.DefaultTemperature = u.temperature
	}
	if u.maxTokens != nil {
		prefs.DefaultMaxTokens = u.maxTokens
	}

	if err := s.SavePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	printPreferences(out, prefs)
	return nil
}

func printPreferences(out io.Writer, p *store.Preferences) {
	fmt.Fprintf(out, "User:          %s\n", p.UserID)
	fmt.Fprintf(out, "Providers:     %s\n", orNone(strings.Join(p.PreferredProviders, ", ")))

	keys := make([]string, 0, len(p.ModelPreferences))
	for k := range p.ModelPreferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + p.ModelPreferences[k]
	}
	fmt.Fprintf(out, "Models:        %s\n", orNone(strings.Join(pairs, ", ")))
	fmt.Fprintf(out, "Default model: %s\n", orNone(p.DefaultModel))

	temp := "default"
	if p.DefaultTemperature != nil {
		temp = fmt.Sprintf("%g", *p.DefaultTemperature)
	}
	maxTokens := "default"
	if p.DefaultMaxTokens != nil {
		maxTokens = fmt.Sprintf("%d", *p.DefaultMaxTokens)
	}
	fmt.Fprintf(out, "Temperature:   %s\n", temp)
	fmt.Fprintf(out, "Max tokens:    %s\n", maxTokens)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
