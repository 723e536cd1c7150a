package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/altafino/attachment-fetcher/internal/email/parser"
	"github.com/altafino/attachment-fetcher/internal/models"
	appoauth "github.com/altafino/attachment-fetcher/internal/oauth2"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"golang.org/x/oauth2"
)

type IMAPOptions struct {
	Provider   string
	Server     string
	Port       int
	TLS        bool
	VerifyCert bool
	Username   string
	Password   string
	Tokens     oauth2.TokenSource
	Timeout    time.Duration
	PageSize   int
	PoolSize   int
	Query      models.Query
}

// IMAPClient serves Gmail, Outlook and generic IMAP accounts. Listing uses one
// connection at a time; content fetches draw from a bounded pool so workers
// can download in parallel.
type IMAPClient struct {
	opts   IMAPOptions
	logger *slog.Logger

	idle  chan *imapConn
	slots chan struct{}

	mu   sync.Mutex
	uids map[string][]uint32
}

type imapConn struct {
	c           *client.Client
	selected    string
	uidValidity uint32
}

// NewIMAPClient creates a client. No connection is made until first use.
func NewIMAPClient(opts IMAPOptions, logger *slog.Logger) *IMAPClient {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	return &IMAPClient{
		opts:   opts,
		logger: logger,
		idle:   make(chan *imapConn, opts.PoolSize),
		slots:  make(chan struct{}, opts.PoolSize),
		uids:   make(map[string][]uint32),
	}
}

func (c *IMAPClient) dial() (*client.Client, error) {
	server := fmt.Sprintf("%s:%d", c.opts.Server, c.opts.Port)
	tlsConfig := &tls.Config{
		ServerName:         c.opts.Server,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !c.opts.VerifyCert,
	}

	c.logger.Debug("connecting to IMAP server",
		"server", c.opts.Server,
		"port", c.opts.Port,
		"tls_enabled", c.opts.TLS,
		"username", c.opts.Username)

	var (
		conn *client.Client
		err  error
	)
	switch {
	case c.opts.Port == 143:
		conn, err = client.Dial(server)
		if err != nil {
			return nil, classify(c.opts.Provider, fmt.Errorf("failed to connect to IMAP server: %w", err))
		}
		if c.opts.TLS {
			if err := conn.StartTLS(tlsConfig); err != nil {
				conn.Logout()
				return nil, classify(c.opts.Provider, fmt.Errorf("STARTTLS failed: %w", err))
			}
		}
	case c.opts.TLS:
		conn, err = client.DialTLS(server, tlsConfig)
		if err != nil {
			return nil, classify(c.opts.Provider, fmt.Errorf("failed to connect to IMAP server: %w", err))
		}
	default:
		conn, err = client.Dial(server)
		if err != nil {
			return nil, classify(c.opts.Provider, fmt.Errorf("failed to connect to IMAP server: %w", err))
		}
	}

	conn.Timeout = c.opts.Timeout

	if err := c.login(conn); err != nil {
		conn.Logout()
		return nil, err
	}

	c.logger.Debug("connected to IMAP server and logged in")
	return conn, nil
}

func (c *IMAPClient) login(conn *client.Client) error {
	if c.opts.Tokens != nil {
		token, err := c.opts.Tokens.Token()
		if err != nil {
			return &AuthError{Provider: c.opts.Provider, Err: fmt.Errorf("failed to get oauth2 token: %w", err)}
		}
		if err := conn.Authenticate(appoauth.NewXOAUTH2Client(c.opts.Username, token.AccessToken)); err != nil {
			return c.loginError(err)
		}
		return nil
	}
	if err := conn.Login(c.opts.Username, c.opts.Password); err != nil {
		return c.loginError(err)
	}
	return nil
}

// loginError treats every rejected login as an auth failure unless the
// server said it is throttling or the connection dropped.
func (c *IMAPClient) loginError(err error) error {
	classified := classify(c.opts.Provider, fmt.Errorf("IMAP login failed: %w", err))
	if IsRetryable(classified) || IsAuthError(classified) {
		return classified
	}
	return &AuthError{Provider: c.opts.Provider, Err: classified}
}

// acquire returns an idle connection or dials a new one while the pool has
// room, waiting otherwise.
func (c *IMAPClient) acquire(ctx context.Context) (*imapConn, error) {
	select {
	case conn := <-c.idle:
		return conn, nil
	default:
	}

	select {
	case conn := <-c.idle:
		return conn, nil
	case c.slots <- struct{}{}:
		conn, err := c.dial()
		if err != nil {
			<-c.slots
			return nil, err
		}
		return &imapConn{c: conn}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release hands the connection back, or drops it when err suggests it is
// no longer usable.
func (c *IMAPClient) release(conn *imapConn, err error) {
	if err != nil && (IsTransient(err) || IsAuthError(err)) {
		conn.c.Logout()
		<-c.slots
		return
	}
	c.idle <- conn
}

func (c *IMAPClient) selectFolder(conn *imapConn, folder string) error {
	if folder == "" {
		folder = "INBOX"
	}
	if conn.selected == folder {
		return nil
	}
	mbox, err := conn.c.Select(folder, true)
	if err != nil {
		return classify(c.opts.Provider, fmt.Errorf("failed to select %s: %w", folder, err))
	}
	conn.selected = folder
	conn.uidValidity = mbox.UidValidity
	return nil
}

// ListMessages returns one page of messages in ascending UID order. The
// first page runs the search; later pages slice its result.
func (c *IMAPClient) ListMessages(ctx context.Context, folder, pageToken string) (Page, error) {
	offset, err := parseOffsetToken(pageToken)
	if err != nil {
		return Page{}, err
	}

	conn, err := c.acquire(ctx)
	if err != nil {
		return Page{}, err
	}
	var opErr error
	defer func() { c.release(conn, opErr) }()

	if opErr = c.selectFolder(conn, folder); opErr != nil {
		return Page{}, opErr
	}

	uids, opErr := c.searchUIDs(conn, folder, pageToken == "")
	if opErr != nil {
		return Page{}, opErr
	}
	if offset >= len(uids) {
		return Page{}, nil
	}

	end := min(offset+c.opts.PageSize, len(uids))
	page := uids[offset:end]

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(page...)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchBodyStructure, imap.FetchUid, imap.FetchInternalDate}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- conn.c.UidFetch(seqSet, items, messages)
	}()

	byUID := make(map[uint32]models.Message, len(page))
	for msg := range messages {
		byUID[msg.Uid] = messageFromIMAP(folder, conn.uidValidity, msg)
	}
	if err := <-done; err != nil {
		opErr = classify(c.opts.Provider, fmt.Errorf("failed to fetch messages: %w", err))
		return Page{}, opErr
	}

	result := Page{NextPageToken: nextOffsetToken(end, len(uids))}
	for _, uid := range page {
		if msg, ok := byUID[uid]; ok {
			result.Messages = append(result.Messages, msg)
		}
	}

	c.logger.Debug("listed IMAP page",
		"folder", folder,
		"offset", offset,
		"messages", len(result.Messages),
		"total", len(uids))
	return result, nil
}

func (c *IMAPClient) searchUIDs(conn *imapConn, folder string, refresh bool) ([]uint32, error) {
	c.mu.Lock()
	cached, ok := c.uids[folder]
	c.mu.Unlock()
	if ok && !refresh {
		return cached, nil
	}

	uids, err := conn.c.UidSearch(searchCriteria(c.opts.Query))
	if err != nil {
		return nil, classify(c.opts.Provider, fmt.Errorf("failed to search %s: %w", folder, err))
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	c.mu.Lock()
	c.uids[folder] = uids
	c.mu.Unlock()
	return uids, nil
}

// searchCriteria narrows the UID SEARCH. SINCE and BEFORE compare the
// internal date by day in the server's timezone, so both bounds are widened
// by a day and the filter refines the rest against the header date.
func searchCriteria(q models.Query) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if !q.Since.IsZero() {
		criteria.Since = q.Since.AddDate(0, 0, -1)
	}
	if !q.Before.IsZero() {
		criteria.Before = q.Before.AddDate(0, 0, 1)
	}
	if q.From != "" {
		criteria.Header.Add("From", q.From)
	}
	if q.Subject != "" {
		criteria.Header.Add("Subject", q.Subject)
	}
	return criteria
}

// FetchAttachmentContent downloads and decodes one body part.
func (c *IMAPClient) FetchAttachmentContent(ctx context.Context, a models.Attachment) ([]byte, error) {
	uidValidity, uid, path, encoding, err := parseIMAPHandle(a.Handle)
	if err != nil {
		return nil, err
	}

	conn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	var opErr error
	defer func() { c.release(conn, opErr) }()

	if opErr = c.selectFolder(conn, a.Folder); opErr != nil {
		return nil, opErr
	}
	if conn.uidValidity != uidValidity {
		return nil, fmt.Errorf("uidvalidity of %s changed from %d to %d, part %s is stale",
			a.Folder, uidValidity, conn.uidValidity, a.Handle)
	}

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Path: path},
		Peek:         true,
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- conn.c.UidFetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		for _, literal := range msg.Body {
			if literal == nil {
				continue
			}
			raw, readErr = io.ReadAll(literal)
			break
		}
	}
	if err := <-done; err != nil {
		opErr = classify(c.opts.Provider, fmt.Errorf("failed to fetch part %s of uid %d: %w", a.Handle, uid, err))
		return nil, opErr
	}
	if readErr != nil {
		opErr = classify(c.opts.Provider, fmt.Errorf("failed to read part %s: %w", a.Handle, readErr))
		return nil, opErr
	}
	if raw == nil {
		return nil, fmt.Errorf("message uid %d has no part %s", uid, formatPartPath(path))
	}

	content, err := parser.DecodeContent(raw, encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to decode part %s: %w", a.Handle, err)
	}
	return content, nil
}

// ListFolders returns all selectable mailboxes.
func (c *IMAPClient) ListFolders(ctx context.Context) ([]string, error) {
	conn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	var opErr error
	defer func() { c.release(conn, opErr) }()

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- conn.c.List("", "*", mailboxes)
	}()

	var folders []string
	for mb := range mailboxes {
		selectable := true
		for _, attr := range mb.Attributes {
			if strings.EqualFold(attr, `\Noselect`) {
				selectable = false
			}
		}
		if selectable {
			folders = append(folders, mb.Name)
		}
	}
	if err := <-done; err != nil {
		opErr = classify(c.opts.Provider, fmt.Errorf("failed to list folders: %w", err))
		return nil, opErr
	}
	sort.Strings(folders)
	return folders, nil
}

// Close logs out every pooled connection.
func (c *IMAPClient) Close() error {
	for {
		select {
		case conn := <-c.idle:
			if err := conn.c.Logout(); err != nil {
				c.logger.Debug("IMAP logout failed", "error", err)
			}
			<-c.slots
		default:
			return nil
		}
	}
}

// messageFromIMAP keys the message by "<uidvalidity>-<uid>" so a mailbox
// whose UIDs were reset never matches earlier tracking entries.
func messageFromIMAP(folder string, uidValidity uint32, msg *imap.Message) models.Message {
	m := models.Message{
		ID:     imapMessageID(uidValidity, msg.Uid),
		Folder: folder,
		Date:   msg.InternalDate,
	}
	if env := msg.Envelope; env != nil {
		m.Subject = parser.DecodeHeader(env.Subject)
		if len(env.From) > 0 && env.From[0] != nil {
			from := env.From[0]
			m.Sender = parser.FormatAddress(parser.DecodeHeader(from.PersonalName), from.Address())
		}
		if !env.Date.IsZero() {
			m.Date = env.Date
		}
	}
	if msg.BodyStructure != nil {
		m.Attachments = attachmentsFromStructure(uidValidity, msg.Uid, msg.BodyStructure)
	}
	return m
}

// attachmentsFromStructure walks the body structure and collects parts that
// carry a filename or an attachment disposition. Attached messages are taken
// whole rather than descended into.
func attachmentsFromStructure(uidValidity, uid uint32, root *imap.BodyStructure) []models.Attachment {
	var out []models.Attachment
	var walk func(path []int, part *imap.BodyStructure)
	walk = func(path []int, part *imap.BodyStructure) {
		if strings.EqualFold(part.MIMEType, "multipart") {
			for i, child := range part.Parts {
				walk(append(append([]int(nil), path...), i+1), child)
			}
			return
		}

		filename := partFilename(part)
		if filename == "" && !strings.EqualFold(part.Disposition, "attachment") {
			return
		}

		partPath := path
		if len(partPath) == 0 {
			partPath = []int{1}
		}

		size := int64(part.Size)
		if strings.EqualFold(part.Encoding, "base64") {
			size = size * 3 / 4
		}

		out = append(out, models.Attachment{
			Filename: filename,
			MimeType: strings.ToLower(part.MIMEType + "/" + part.MIMESubType),
			Size:     size,
			Handle:   formatIMAPHandle(uidValidity, uid, partPath, part.Encoding),
		})
	}
	walk(nil, root)
	return out
}

func partFilename(part *imap.BodyStructure) string {
	for _, params := range []map[string]string{part.DispositionParams, part.Params} {
		for key, value := range params {
			k := strings.ToLower(key)
			if k == "filename" || k == "name" {
				if name := parser.DecodeHeader(value); name != "" {
					return name
				}
			}
		}
	}
	return ""
}

func formatPartPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

func imapMessageID(uidValidity, uid uint32) string {
	return fmt.Sprintf("%d-%d", uidValidity, uid)
}

// formatIMAPHandle encodes the message ID, part path and transfer encoding,
// e.g. "1700000000-42:2.1:base64".
func formatIMAPHandle(uidValidity, uid uint32, path []int, encoding string) string {
	return fmt.Sprintf("%s:%s:%s", imapMessageID(uidValidity, uid), formatPartPath(path), strings.ToLower(encoding))
}

func parseIMAPHandle(handle string) (uint32, uint32, []int, string, error) {
	invalid := fmt.Errorf("invalid IMAP handle %q", handle)
	fields := strings.SplitN(handle, ":", 3)
	if len(fields) != 3 {
		return 0, 0, nil, "", invalid
	}
	validityField, uidField, ok := strings.Cut(fields[0], "-")
	if !ok {
		return 0, 0, nil, "", invalid
	}
	uidValidity, err := strconv.ParseUint(validityField, 10, 32)
	if err != nil {
		return 0, 0, nil, "", invalid
	}
	uid, err := strconv.ParseUint(uidField, 10, 32)
	if err != nil || uid == 0 {
		return 0, 0, nil, "", invalid
	}
	var path []int
	for _, p := range strings.Split(fields[1], ".") {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return 0, 0, nil, "", invalid
		}
		path = append(path, n)
	}
	return uint32(uidValidity), uint32(uid), path, fields[2], nil
}
