package email

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/types"
	"golang.org/x/oauth2"
)

const (
	defaultPageSize = 50
	defaultTimeout  = 30 * time.Second
)

// Page is one slice of a folder listing. An empty NextPageToken means the
// folder is exhausted.
type Page struct {
	Messages      []models.Message
	NextPageToken string
}

// Client is the provider-neutral mailbox adapter.
type Client interface {
	ListMessages(ctx context.Context, folder, pageToken string) (Page, error)
	FetchAttachmentContent(ctx context.Context, a models.Attachment) ([]byte, error)
	Close() error
}

// FolderLister is implemented by clients that can enumerate folders.
type FolderLister interface {
	ListFolders(ctx context.Context) ([]string, error)
}

// Options carries everything NewClient needs beyond the profile config.
type Options struct {
	// Password is used when Tokens is nil.
	Password string
	Tokens   oauth2.TokenSource
	Query    models.Query
	// PoolSize bounds parallel IMAP connections.
	PoolSize int
}

// NewClient builds the client variant selected by account.provider.
func NewClient(ctx context.Context, cfg *types.Config, opts Options, logger *slog.Logger) (Client, error) {
	provider, err := LookupProvider(cfg.Account.Provider)
	if err != nil {
		return nil, err
	}

	server := cfg.Account.Server
	if server == "" {
		server = provider.Server
	}
	port := cfg.Account.Port
	if port == 0 {
		port = provider.Port
	}
	pageSize := cfg.Account.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	timeout := time.Duration(cfg.Account.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger = logger.With("provider", provider.Key)

	switch provider.Key {
	case ProviderGmail, ProviderOutlook, ProviderIMAP:
		if server == "" {
			return nil, fmt.Errorf("account.server is required for provider %s", provider.Key)
		}
		if opts.Tokens == nil && opts.Password == "" {
			return nil, &AuthError{Provider: provider.Key, Err: fmt.Errorf("no password or oauth2 token configured")}
		}
		return NewIMAPClient(IMAPOptions{
			Provider:   provider.Key,
			Server:     server,
			Port:       port,
			TLS:        cfg.Account.TLS.Enabled,
			VerifyCert: cfg.Account.TLS.VerifyCert,
			Username:   cfg.Account.Username,
			Password:   opts.Password,
			Tokens:     opts.Tokens,
			Timeout:    timeout,
			PageSize:   pageSize,
			PoolSize:   opts.PoolSize,
			Query:      opts.Query,
		}, logger), nil

	case ProviderPOP3:
		if server == "" {
			return nil, fmt.Errorf("account.server is required for provider %s", provider.Key)
		}
		if opts.Password == "" {
			return nil, &AuthError{Provider: provider.Key, Err: fmt.Errorf("no password configured")}
		}
		return NewPOP3Client(POP3Options{
			Server:     server,
			Port:       port,
			TLS:        cfg.Account.TLS.Enabled,
			VerifyCert: cfg.Account.TLS.VerifyCert,
			Username:   addDomainIfNeeded(cfg.Account.Username, server),
			Password:   opts.Password,
			PageSize:   pageSize,
		}, logger), nil

	case ProviderGmailAPI:
		if opts.Tokens == nil {
			return nil, &AuthError{Provider: provider.Key, Err: fmt.Errorf("gmail-api requires oauth2")}
		}
		return NewGmailAPIClient(ctx, opts.Tokens, GmailOptions{
			PageSize: pageSize,
			Query:    opts.Query,
		}, logger)
	}

	return nil, fmt.Errorf("unsupported provider: %s", provider.Key)
}

// addDomainIfNeeded qualifies a bare POP3 username with the server's
// domain, which several hosting providers require.
func addDomainIfNeeded(username, server string) string {
	if username == "" || strings.Contains(username, "@") {
		return username
	}
	parts := strings.Split(server, ".")
	if len(parts) < 2 {
		return username
	}
	if parts[0] == "pop" || parts[0] == "pop3" || parts[0] == "mail" {
		parts = parts[1:]
	}
	return username + "@" + strings.Join(parts, ".")
}

// parseOffsetToken decodes the decimal offset page token used by the
// IMAP and POP3 clients.
func parseOffsetToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid page token %q", token)
	}
	return offset, nil
}

// nextOffsetToken returns the token following a page that ended at end, or
// "" when total is reached.
func nextOffsetToken(end, total int) string {
	if end >= total {
		return ""
	}
	return strconv.Itoa(end)
}

// isInbox reports whether folder names the default folder.
func isInbox(folder string) bool {
	return folder == "" || strings.EqualFold(folder, "INBOX")
}
