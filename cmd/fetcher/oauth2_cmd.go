package main

import (
	"errors"
	"fmt"

	"github.com/altafino/attachment-fetcher/internal/oauth2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	goauth2 "golang.org/x/oauth2"
)

// CreateOAuth2Command creates and returns the OAuth2 command
func CreateOAuth2Command() *cobra.Command {
	oauth2Cmd := &cobra.Command{
		Use:   "oauth2",
		Short: "OAuth2 token management",
		Long:  `Manage OAuth2 tokens for mail accounts`,
	}

	generateCmd := &cobra.Command{
		Use:   "generate [config-id]",
		Short: "Generate OAuth2 token",
		Long:  `Open the provider consent page and store the resulting token for a configuration`,
		Args:  cobra.ExactArgs(1),
		RunE:  generateOAuth2Token,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List OAuth2 tokens",
		Long:  `List the stored OAuth2 tokens of all configurations`,
		RunE:  listOAuth2Tokens,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [config-id]",
		Short: "Delete OAuth2 token",
		Long:  `Delete the OAuth2 token of a configuration`,
		Args:  cobra.ExactArgs(1),
		RunE:  deleteOAuth2Token,
	}

	oauth2Cmd.AddCommand(generateCmd, listCmd, deleteCmd)
	return oauth2Cmd
}

func generateOAuth2Token(cmd *cobra.Command, args []string) error {
	a, log, err := newApp(nil)
	if err != nil {
		return err
	}
	cfg, err := a.Store().Get(args[0])
	if err != nil {
		return err
	}

	tm, err := a.TokenManager(cfg)
	if err != nil {
		return err
	}
	conf, err := oauth2.ConfigFor(cfg.Account.OAuth2)
	if err != nil {
		return err
	}

	state := uuid.NewString()
	authURL := conf.AuthCodeURL(state, goauth2.AccessTypeOffline, goauth2.ApprovalForce)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Please open the following URL in your browser:\n\n%s\n\n", authURL)
	fmt.Fprintln(out, "Waiting for authentication...")

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	code, err := oauth2.WaitForCode(ctx, conf.RedirectURL, state, log)
	if err != nil {
		return fmt.Errorf("failed to get authorization code: %w", err)
	}

	fmt.Fprintln(out, "Authorization code received, exchanging for token...")
	token, err := tm.Exchange(ctx, code)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "OAuth2 token generated and saved for account %s\n", oauth2.AccountID(cfg))
	fmt.Fprintf(out, "Token expires at: %s\n", token.Expiry.Format("2006-01-02 15:04:05"))
	return nil
}

func listOAuth2Tokens(cmd *cobra.Command, args []string) error {
	a, _, err := newApp(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	found := false
	for _, cfg := range a.Store().List() {
		if !cfg.Account.OAuth2.Enabled {
			continue
		}
		store, err := a.TokenStore(cfg)
		if err != nil {
			fmt.Fprintf(out, "Config: %s (Error opening token store: %v)\n", cfg.Meta.ID, err)
			continue
		}

		accountID := oauth2.AccountID(cfg)
		token, err := store.Load(accountID)
		if errors.Is(err, oauth2.ErrNoToken) {
			continue
		}
		found = true
		if err != nil {
			fmt.Fprintf(out, "Account: %s (Error reading token: %v)\n", accountID, err)
			continue
		}

		fmt.Fprintf(out, "Account: %s\n", accountID)
		fmt.Fprintf(out, "  Config: %s\n", cfg.Meta.ID)
		fmt.Fprintf(out, "  Store: %s\n", storeName(cfg.Account.OAuth2.TokenStore))
		fmt.Fprintf(out, "  Expires: %s\n", token.Expiry.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  Valid: %v\n", token.Valid())
		fmt.Fprintln(out)
	}

	if !found {
		fmt.Fprintln(out, "No OAuth2 tokens found")
	}
	return nil
}

func deleteOAuth2Token(cmd *cobra.Command, args []string) error {
	a, _, err := newApp(nil)
	if err != nil {
		return err
	}
	cfg, err := a.Store().Get(args[0])
	if err != nil {
		return err
	}
	if !cfg.Account.OAuth2.Enabled {
		return fmt.Errorf("oauth2 is not enabled for configuration %s", cfg.Meta.ID)
	}

	store, err := a.TokenStore(cfg)
	if err != nil {
		return err
	}
	accountID := oauth2.AccountID(cfg)
	if err := store.Delete(accountID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "OAuth2 token deleted for account %s\n", accountID)
	return nil
}

func storeName(kind string) string {
	if kind == "" {
		return "file"
	}
	return kind
}
