package oauth2

import (
	"fmt"

	"github.com/altafino/attachment-fetcher/internal/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// DefaultRedirectURL is where the local callback server listens.
const DefaultRedirectURL = "http://localhost:8085/oauth/callback"

// GoogleScopes cover IMAP, the Gmail REST API and uploads to Drive.
var GoogleScopes = []string{
	"https://mail.google.com/",
	"https://www.googleapis.com/auth/drive.file",
}

// MicrosoftScopes cover IMAP on Outlook.
var MicrosoftScopes = []string{
	"https://outlook.office.com/IMAP.AccessAsUser.All",
	"offline_access",
}

// GetProviderConfig returns the OAuth2 config for a specific provider
func GetProviderConfig(provider, clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	}
	switch provider {
	case "google":
		cfg.Scopes = GoogleScopes
		cfg.Endpoint = google.Endpoint
	case "microsoft":
		cfg.Scopes = MicrosoftScopes
		cfg.Endpoint = microsoft.AzureADEndpoint("common")
	default:
		return nil, fmt.Errorf("unsupported OAuth2 provider: %s", provider)
	}
	return cfg, nil
}

// ConfigFor builds the OAuth2 config of a profile's account.
func ConfigFor(cfg types.OAuth2Config) (*oauth2.Config, error) {
	return GetProviderConfig(cfg.Provider, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL)
}

// AccountID names the stored token of a profile.
func AccountID(cfg *types.Config) string {
	return fmt.Sprintf("%s_%s", cfg.Meta.ID, cfg.Account.Username)
}
