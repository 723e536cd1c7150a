package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/altafino/attachment-fetcher/internal/email/parser"
	"github.com/altafino/attachment-fetcher/internal/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const inlineHandlePrefix = "inline:"

type GmailOptions struct {
	PageSize int
	Query    models.Query
	// ClientOptions replace the token source based defaults, e.g. to point
	// the service at a test server.
	ClientOptions []option.ClientOption
}

// GmailAPIClient reads Gmail through the REST API. Folders are label names.
type GmailAPIClient struct {
	svc    *gmail.Service
	opts   GmailOptions
	logger *slog.Logger

	mu     sync.Mutex
	labels map[string]string // lower-case name -> id
}

func NewGmailAPIClient(ctx context.Context, tokens oauth2.TokenSource, opts GmailOptions, logger *slog.Logger) (*GmailAPIClient, error) {
	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		clientOpts = []option.ClientOption{option.WithTokenSource(tokens)}
	}
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &GmailAPIClient{svc: svc, opts: opts, logger: logger}, nil
}

// ListMessages lists messages carrying attachments under the folder's label.
func (c *GmailAPIClient) ListMessages(ctx context.Context, folder, pageToken string) (Page, error) {
	labelID, err := c.labelID(ctx, folder)
	if err != nil {
		return Page{}, err
	}

	call := c.svc.Users.Messages.List("me").
		LabelIds(labelID).
		Q(gmailQuery(c.opts.Query)).
		MaxResults(int64(c.opts.PageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return Page{}, classifyGoogle(fmt.Errorf("failed to list messages: %w", err))
	}

	page := Page{NextPageToken: res.NextPageToken}
	for _, ref := range res.Messages {
		msg, err := c.svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return Page{}, classifyGoogle(fmt.Errorf("failed to get message %s: %w", ref.Id, err))
		}
		page.Messages = append(page.Messages, messageFromGmail(folder, msg))
	}

	c.logger.Debug("listed gmail page", "folder", folder, "messages", len(page.Messages), "has_next", page.NextPageToken != "")
	return page, nil
}

// FetchAttachmentContent downloads an attachment by id, or extracts small
// bodies Gmail inlines into the message itself.
func (c *GmailAPIClient) FetchAttachmentContent(ctx context.Context, a models.Attachment) ([]byte, error) {
	if a.MessageID == "" || a.Handle == "" {
		return nil, fmt.Errorf("message id and handle are required")
	}

	if partID, ok := strings.CutPrefix(a.Handle, inlineHandlePrefix); ok {
		msg, err := c.svc.Users.Messages.Get("me", a.MessageID).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, classifyGoogle(fmt.Errorf("failed to get message %s: %w", a.MessageID, err))
		}
		var data string
		found := false
		walkGmailParts(msg.Payload, func(part *gmail.MessagePart) {
			if part.PartId == partID && part.Body != nil {
				data = part.Body.Data
				found = true
			}
		})
		if !found {
			return nil, fmt.Errorf("message %s has no part %s", a.MessageID, partID)
		}
		return decodeGmailData(data)
	}

	att, err := c.svc.Users.Messages.Attachments.Get("me", a.MessageID, a.Handle).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogle(fmt.Errorf("failed to get attachment of %s: %w", a.MessageID, err))
	}
	return decodeGmailData(att.Data)
}

// ListFolders returns label names.
func (c *GmailAPIClient) ListFolders(ctx context.Context) ([]string, error) {
	res, err := c.svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogle(fmt.Errorf("failed to list labels: %w", err))
	}
	names := make([]string, 0, len(res.Labels))
	for _, l := range res.Labels {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *GmailAPIClient) Close() error { return nil }

func (c *GmailAPIClient) labelID(ctx context.Context, folder string) (string, error) {
	if folder == "" {
		folder = "INBOX"
	}
	if err := c.loadLabels(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.labels[strings.ToLower(folder)]
	if !ok {
		return "", fmt.Errorf("label %q not found", folder)
	}
	return id, nil
}

func (c *GmailAPIClient) loadLabels(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.labels != nil
	c.mu.Unlock()
	if loaded {
		return nil
	}

	res, err := c.svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return classifyGoogle(fmt.Errorf("failed to list labels: %w", err))
	}
	labels := make(map[string]string, len(res.Labels))
	for _, l := range res.Labels {
		labels[strings.ToLower(l.Name)] = l.Id
	}

	c.mu.Lock()
	c.labels = labels
	c.mu.Unlock()
	return nil
}

// gmailQuery renders the narrowing hint in Gmail search syntax. Dates go
// out as epoch seconds; YYYY/MM/DD terms are read in Pacific time.
func gmailQuery(q models.Query) string {
	terms := []string{"has:attachment"}
	if !q.Since.IsZero() {
		terms = append(terms, fmt.Sprintf("after:%d", q.Since.Unix()))
	}
	if !q.Before.IsZero() {
		terms = append(terms, fmt.Sprintf("before:%d", q.Before.Unix()))
	}
	if q.From != "" {
		terms = append(terms, fmt.Sprintf("from:%q", q.From))
	}
	if q.Subject != "" {
		terms = append(terms, fmt.Sprintf("subject:%q", q.Subject))
	}
	return strings.Join(terms, " ")
}

func messageFromGmail(folder string, msg *gmail.Message) models.Message {
	m := models.Message{
		ID:     msg.Id,
		Folder: folder,
	}
	if msg.InternalDate > 0 {
		m.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return m
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			name, addr := parser.ParseEmailAddress(h.Value)
			m.Sender = parser.FormatAddress(name, addr)
		case "subject":
			m.Subject = parser.DecodeHeader(h.Value)
		case "date":
			if m.Date.IsZero() {
				m.Date = parser.ParseDate(h.Value)
			}
		}
	}

	walkGmailParts(msg.Payload, func(part *gmail.MessagePart) {
		if part.Filename == "" || part.Body == nil {
			return
		}
		handle := part.Body.AttachmentId
		if handle == "" {
			handle = inlineHandlePrefix + part.PartId
		}
		m.Attachments = append(m.Attachments, models.Attachment{
			Filename: part.Filename,
			MimeType: strings.ToLower(part.MimeType),
			Size:     part.Body.Size,
			Handle:   handle,
		})
	})
	return m
}

func walkGmailParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkGmailParts(sub, fn)
	}
}

// decodeGmailData decodes base64url data, padded or not.
func decodeGmailData(data string) ([]byte, error) {
	if out, err := base64.URLEncoding.DecodeString(data); err == nil {
		return out, nil
	}
	if out, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return out, nil
	}
	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return out, nil
}

var gmailRateReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

// classifyGoogle maps googleapi errors onto the adapter error kinds.
func classifyGoogle(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return classify(ProviderGmailAPI, err)
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return &AuthError{Provider: ProviderGmailAPI, Err: err}
	case apiErr.Code == http.StatusTooManyRequests:
		return &RateLimitError{Provider: ProviderGmailAPI, RetryAfter: retryAfter(apiErr.Header), Err: err}
	case apiErr.Code == http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if gmailRateReasons[item.Reason] {
				return &RateLimitError{Provider: ProviderGmailAPI, RetryAfter: retryAfter(apiErr.Header), Err: err}
			}
		}
		return &AuthError{Provider: ProviderGmailAPI, Err: err}
	case apiErr.Code >= 500:
		return &TransientNetworkError{Provider: ProviderGmailAPI, Err: err}
	}
	return err
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
