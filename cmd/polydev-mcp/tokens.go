// ABOUTME: token subcommands for minting, listing, and revoking MCP bearer tokens
// ABOUTME: Plaintext tokens are printed exactly once; only digests or previews are stored

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
	"github.com/polydev-ai/polydev-mcp/internal/store"
)

func newTokenCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage MCP bearer tokens",
	}
	cmd.AddCommand(
		newTokenCreateMCPCmd(load),
		newTokenCreateOAuthCmd(load),
		newTokenListCmd(load),
		newTokenRevokeCmd(load),
	)
	return cmd
}

func newTokenCreateMCPCmd(load configLoader) *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create-mcp",
		Short: "Mint a long-lived pd_ token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(load, func(s store.Store) error {
				return createMCPToken(cmd.Context(), s, cmd.OutOrStdout(), userID, name)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "human-readable token name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenCreateOAuthCmd(load configLoader) *cobra.Command {
	var userID, clientID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "create-oauth",
		Short: "Mint an expiring polydev_ access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(load, func(s store.Store) error {
				return createOAuthToken(cmd.Context(), s, cmd.OutOrStdout(), userID, clientID, ttl, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user ID (required)")
	cmd.Flags().StringVar(&clientID, "client", "cli", "OAuth client ID recorded with the token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultAccessTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenListCmd(load configLoader) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's pd_ tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(load, func(s store.Store) error {
				return listTokens(cmd.Context(), s, cmd.OutOrStdout(), userID)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenRevokeCmd(load configLoader) *cobra.Command {
	var id, token string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Deactivate a pd_ token by ID or revoke a polydev_ token by value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(load, func(s store.Store) error {
				return revokeToken(cmd.Context(), s, cmd.OutOrStdout(), id, token)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "pd_ token record ID")
	cmd.Flags().StringVar(&token, "token", "", "polydev_ access token value")
	cmd.MarkFlagsMutuallyExclusive("id", "token")
	cmd.MarkFlagsOneRequired("id", "token")
	return cmd
}

// withStore opens the store for one command and always closes it.
func withStore(load configLoader, fn func(store.Store) error) (err error) {
	s, err := openStore(load)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing store: %w", cerr)
		}
	}()
	return fn(s)
}

func createMCPToken(ctx context.Context, s store.TokenStore, out io.Writer, userID, name string) error {
	if userID == "" {
		return errors.New("user is required")
	}
	minted, err := auth.NewHashedToken()
	if err != nil {
		return err
	}

	record := &store.HashedToken{
		UserID:    userID,
		Name:      name,
		TokenHash: minted.Hash,
		Preview:   minted.Preview,
		Active:    true,
	}
	if err := s.CreateHashedToken(ctx, record); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintf(out, "Token ID: %s\n", record.ID)
	fmt.Fprintf(out, "Token:    %s\n", minted.Token)
	fmt.Fprintln(out, "Store this token now; it cannot be shown again.")
	return nil
}

func createOAuthToken(ctx context.Context, s store.TokenStore, out io.Writer, userID, clientID string, ttl time.Duration, now time.Time) error {
	if userID == "" {
		return errors.New("user is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	token, err := auth.NewAccessToken()
	if err != nil {
		return err
	}

	expires := now.Add(ttl).UTC()
	if err := s.CreateAccessToken(ctx, &store.AccessToken{
		Token:     token,
		ClientID:  clientID,
		UserID:    userID,
		ExpiresAt: expires,
	}); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintf(out, "Token:   %s\n", token)
	fmt.Fprintf(out, "Expires: %s\n", expires.Format(time.RFC3339))
	return nil
}

func listTokens(ctx context.Context, s store.TokenStore, out io.Writer, userID string) error {
	tokens, err := s.ListHashedTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing tokens: %w", err)
	}
	if len(tokens) == 0 {
		fmt.Fprintln(out, "No tokens.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPREVIEW\tACTIVE\tLAST USED")
	for _, t := range tokens {
		lastUsed := "never"
		if t.LastUsedAt != nil {
			lastUsed = t.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", t.ID, t.Name, t.Preview, t.Active, lastUsed)
	}
	return tw.Flush()
}

func revokeToken(ctx context.Context, s store.TokenStore, out io.Writer, id, token string) error {
	switch {
	case id != "":
		if err := s.DeactivateHashedToken(ctx, id); err != nil {
			return fmt.Errorf("deactivating token: %w", err)
		}
		fmt.Fprintf(out, "Deactivated token %s\n", id)
	case token != "":
		if auth.ClassifyCredential(token) != auth.CredentialExpiring {
			return fmt.Errorf("--token expects a %s token", auth.ExpiringTokenPrefix)
		}
		if err := s.RevokeAccessToken(ctx, token); err != nil {
			return fmt.Errorf("revoking token: %w", err)
		}
		fmt.Fprintf(out, "Revoked token %s\n", auth.TokenPreview(token))
	default:
		return errors.New("one of --id or --token is required")
	}
	return nil
}
