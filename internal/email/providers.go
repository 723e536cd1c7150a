package email

import (
	"fmt"
	"sort"
)

const (
	ProviderGmail    = "gmail"
	ProviderOutlook  = "outlook"
	ProviderIMAP     = "imap"
	ProviderPOP3     = "pop3"
	ProviderGmailAPI = "gmail-api"
)

// Provider holds the connection preset and user help for a mail provider.
type Provider struct {
	Key      string
	Name     string
	Server   string
	Port     int
	OAuth2   string // google or microsoft, empty when not applicable
	HelpText string
}

// Providers lists the built-in presets.
var Providers = map[string]Provider{
	ProviderGmail: {
		Key:    ProviderGmail,
		Name:   "Gmail",
		Server: "imap.gmail.com",
		Port:   993,
		OAuth2: "google",
		HelpText: "Use an App Password (not your regular password):\n" +
			"1. Enable 2-Step Verification in your Google Account\n" +
			"2. Go to myaccount.google.com/apppasswords\n" +
			"3. Generate a password for 'Mail'\n" +
			"4. Store it with: fetcher credentials set <config-id>",
	},
	ProviderOutlook: {
		Key:    ProviderOutlook,
		Name:   "Outlook / Hotmail",
		Server: "outlook.office365.com",
		Port:   993,
		OAuth2: "microsoft",
		HelpText: "For Outlook.com / Hotmail / Live:\n" +
			"1. Use your regular password, or\n" +
			"2. If 2FA is enabled, create an App Password at account.microsoft.com/security\n" +
			"IMAP must be enabled in the Outlook settings.",
	},
	ProviderIMAP: {
		Key:      ProviderIMAP,
		Name:     "IMAP server",
		Port:     993,
		HelpText: "Set account.server and account.port for your IMAP server.",
	},
	ProviderPOP3: {
		Key:      ProviderPOP3,
		Name:     "POP3 server",
		Port:     995,
		HelpText: "POP3 only exposes INBOX; folders other than INBOX are rejected.",
	},
	ProviderGmailAPI: {
		Key:      ProviderGmailAPI,
		Name:     "Gmail (REST API)",
		OAuth2:   "google",
		HelpText: "Requires OAuth2. Run: fetcher oauth2 generate <config-id>",
	},
}

// LookupProvider returns the preset for key.
func LookupProvider(key string) (Provider, error) {
	p, ok := Providers[key]
	if !ok {
		return Provider{}, fmt.Errorf("unsupported provider: %s", key)
	}
	return p, nil
}

// ProviderKeys returns the preset keys in stable order.
func ProviderKeys() []string {
	keys := make([]string, 0, len(Providers))
	for k := range Providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
